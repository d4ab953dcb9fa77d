package app

import (
	"fmt"
	"log"
	"reflect"
	"strings"

	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	ConfigPath string
	Verbose    bool
	ApiGinMode string

	Ip   string
	Port string

	// invite deep links are minted as https://<InviteHost>/<teamId>
	InviteHost string

	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string

	//kc
	AuthAddress  string
	Issuer       string
	Audience     string
	Realm        string
	ClientID     string
	ClientSecret string

	// database
	DBAddress  string
	DBUser     string
	DBPassword string
	DBName     string
}

func loadConfig(path string) Config {
	if err := godotenv.Load(path); err != nil {
		log.Printf("Failed to load the config file at %s, using default ones...", path)
	}

	s := strings.Split(path, "/")
	config := Config{
		ConfigPath: s[len(s)-1],
		Verbose:    getBoolEnv("VERBOSE", "true"),
		ApiGinMode: getEnv("GIN_MODE", "debug"),

		Ip:         getEnv("IP", ""),
		Port:       getEnv("PORT", "5080"),
		InviteHost: getEnv("INVITE_HOST", "workstream.app"),

		AllowedOrigins: getEnvFields("ALLOW_ORIGINS", []string{"*"}),
		AllowedMethods: getEnvFields("ALLOW_METHODS", []string{"*"}),
		AllowedHeaders: getEnvFields("ALLOW_HEADERS", []string{"*"}),

		AuthAddress:  getEnv("AUTH_ADDRESS", "localhost:5555"),
		Issuer:       getEnv("KC_ISSUER", ""),
		Audience:     getEnv("KC_AUDIENCE", "workstream-app"),
		Realm:        getEnv("KC_REALM", "workstream"),
		ClientID:     getEnv("KC_CLIENT", "workstream-api"),
		ClientSecret: getEnv("KC_CLIENT_SECRET", ""),

		DBAddress:  getEnv("DB_ADDRESS", "api-db:5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "workstream"),
	}

	// the realm issuer is derivable from the provider address unless the
	// deployment fronts it behind a different URL
	if config.Issuer == "" {
		config.Issuer = fmt.Sprintf("http://%s/realms/%s", config.AuthAddress, config.Realm)
	}

	if config.Verbose {
		log.Print(config.toString())
	}

	return config
}

// listenAddr composes the bind address; an empty Ip binds every interface.
func (cfg Config) listenAddr() string {
	return fmt.Sprintf("%s:%s", cfg.Ip, cfg.Port)
}

func (cfg Config) dbConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBAddress,
		cfg.DBName,
	)
}

func getEnv(env, fallback string) string {
	if value, exists := os.LookupEnv(env); exists {
		return value
	}

	return fallback
}

func getEnvFields(env string, fallback []string) []string {
	if value, exists := os.LookupEnv(env); exists {
		fields := strings.Split(strings.TrimSpace(value), ",")

		return fields
	}

	return fallback
}

func getBoolEnv(env, fallback string) bool {
	if value, exists := os.LookupEnv(env); exists {
		return strings.ToLower(value) == "true"
	}

	return strings.ToLower(fallback) == "true"
}

func (cfg *Config) toString() string {
	var strBuilder strings.Builder

	reflectedValues := reflect.ValueOf(cfg).Elem()
	reflectedTypes := reflect.TypeOf(cfg).Elem()

	strBuilder.WriteString(fmt.Sprintf("[CFG]CONFIGURATION: %s\n", cfg.ConfigPath))

	for i := 0; i < reflectedValues.NumField(); i++ {
		fieldName := reflectedTypes.Field(i).Name
		fieldValue := reflectedValues.Field(i).Interface()

		if fieldName == "ClientSecret" && fieldValue != "" {
			fieldValue = "<redacted>"
		}

		strBuilder.WriteString("[CFG]")
		if i < 9 {
			strBuilder.WriteString(fmt.Sprintf("%d.  ", i+1))
		} else {
			strBuilder.WriteString(fmt.Sprintf("%d. ", i+1))
		}
		if len(fieldName) <= 6 {
			strBuilder.WriteString(fmt.Sprintf("%v\t\t\t\t\t-> %v\n", fieldName, fieldValue))
		} else if len(fieldName) <= 14 {
			strBuilder.WriteString(fmt.Sprintf("%v\t\t\t\t-> %v\n", fieldName, fieldValue))
		} else {
			strBuilder.WriteString(fmt.Sprintf("%v\t\t\t-> %v\n", fieldName, fieldValue))
		}
	}

	return strBuilder.String()
}

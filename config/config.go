package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Observ  ObservabilityConfig
	Payment PaymentConfig
	Carrier CarrierConfig
	Sender  SenderConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicOrders   string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

// PaymentConfig holds the Webpay integration credentials. The defaults are
// the public Transbank integration-environment values.
type PaymentConfig struct {
	BaseURL      string
	CommerceCode string
	APIKey       string
}

// CarrierConfig holds the three Chilexpress API products. Each has its own
// base URL and subscription key; the keys are loaded from key files.
type CarrierConfig struct {
	CoverageBaseURL  string
	RatingBaseURL    string
	TransportBaseURL string
	CoverageAPIKey   string
	RatingAPIKey     string
	TransportAPIKey  string

	CustomerCardNumber string
	MarketplaceRut     string
	SellerRut          string
	AccountRut         int
}

// SenderConfig is the fixed origin and return address attached to every
// shipment. Process-wide, never per request.
type SenderConfig struct {
	Name         string
	PhoneNumber  string
	Email        string
	CountyCode   string
	StreetName   string
	StreetNumber int
	Supplement   string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	accountRut, _ := strconv.Atoi(getEnv("CHILEXPRESS_ACCOUNT_RUT", "96756430"))
	senderNumber, _ := strconv.Atoi(getEnv("SENDER_STREET_NUMBER", "100"))

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Env:         getEnv("ENV", "development"),
			CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173"), ","),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "carrito"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicOrders:   getEnv("KAFKA_TOPIC_ORDER_EVENTS", "order-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "carrito-backend-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Payment: PaymentConfig{
			BaseURL:      getEnv("WEBPAY_BASE_URL", "https://webpay3gint.transbank.cl"),
			CommerceCode: getEnv("WEBPAY_COMMERCE_CODE", "597055555532"),
			APIKey:       getEnv("WEBPAY_API_KEY", "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"),
		},
		Carrier: CarrierConfig{
			CoverageBaseURL:  getEnv("CHILEXPRESS_COVERAGE_BASE_URL", "http://testservices.wschilexpress.com/georeference/api/v1"),
			RatingBaseURL:    getEnv("CHILEXPRESS_RATING_BASE_URL", "http://testservices.wschilexpress.com/rating/api/v1"),
			TransportBaseURL: getEnv("CHILEXPRESS_TRANSPORT_BASE_URL", "http://testservices.wschilexpress.com/transport-orders/api/v1"),

			CoverageAPIKey:  loadKey("CHILEXPRESS_COBERTURAS_API_KEY", "CHILEXPRESS_COBERTURAS_API_KEY_PATH"),
			RatingAPIKey:    loadKey("CHILEXPRESS_COTIZACIONES_API_KEY", "CHILEXPRESS_COTIZACIONES_API_KEY_PATH"),
			TransportAPIKey: loadKey("CHILEXPRESS_ENVIOS_API_KEY", "CHILEXPRESS_ENVIOS_API_KEY_PATH"),

			CustomerCardNumber: getEnv("CHILEXPRESS_CUSTOMER_CARD", "18578680"),
			MarketplaceRut:     getEnv("CHILEXPRESS_MARKETPLACE_RUT", "96756430"),
			SellerRut:          getEnv("CHILEXPRESS_SELLER_RUT", "DEFAULT"),
			AccountRut:         accountRut,
		},
		Sender: SenderConfig{
			Name:         getEnv("SENDER_NAME", "Tu Tienda E-commerce"),
			PhoneNumber:  getEnv("SENDER_PHONE", "223824861"),
			Email:        getEnv("SENDER_EMAIL", "contacto@tutienda.cl"),
			CountyCode:   getEnv("SENDER_COUNTY_CODE", "STGO"),
			StreetName:   getEnv("SENDER_STREET_NAME", "SAN ALFONSO"),
			StreetNumber: senderNumber,
			Supplement:   getEnv("SENDER_SUPPLEMENT", "Oficina 101"),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadKey resolves an API key either directly from keyEnv or from the key
// file named by pathEnv. Missing keys log a warning; the client rejects
// requests for that API product at call time.
func loadKey(keyEnv, pathEnv string) string {
	if val := os.Getenv(keyEnv); val != "" {
		return val
	}

	path := os.Getenv(pathEnv)
	if path == "" {
		log.Printf("Warning: neither %s nor %s is set", keyEnv, pathEnv)
		return ""
	}

	key, err := ReadAPIKeyFile(path)
	if err != nil {
		log.Printf("Warning: could not load API key from %s: %v", path, err)
		return ""
	}
	return key
}

// ReadAPIKeyFile reads an API key from a file. Accepted layouts: a JSON
// object {"apiKey": "..."}, a bare JSON string, or plain text.
func ReadAPIKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		if key, ok := obj["apiKey"]; ok && key != "" {
			return key, nil
		}
		return "", fmt.Errorf("key file %s has no apiKey field", path)
	}

	var plain string
	if err := json.Unmarshal(data, &plain); err == nil && plain != "" {
		return plain, nil
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("key file %s is empty", path)
	}
	return key, nil
}

package main

import (
	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the notifier configuration, loadable from environment
// variables (SHOP_NOTIFIER_ prefix), flags, or YAML config files.
type Config struct {
	Brokers  []string `default:"localhost:9092" usage:"Kafka bootstrap brokers"`
	Topic    string   `default:"order-notifications" usage:"Topic to consume notification events from"`
	GroupID  string   `default:"notifier" usage:"Kafka consumer group" flag:"group-id"`
	TrackURL string   `default:"http://localhost:5173/orders" usage:"Storefront order page prefix used in messages" flag:"track-url"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP_NOTIFIER",
		Files:     []string{"notifier.yaml", "/etc/shop/notifier.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("brokers and topic are required")
	}
	return &cfg, nil
}

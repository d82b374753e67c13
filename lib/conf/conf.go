package conf

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

var (
	config     *Config
	configLock = new(sync.RWMutex)
	loadedPath string
)

//Config is the whole configuration for the session core and the relay.
type Config struct {
	Port            string
	DevelopmentMode bool
	APIBase         string //eg. https://api.caelium.co
	WSHost          string //eg. wss://api.caelium.co
	MessagePageSize int
	TypingExpiry    int //seconds of silence before a typing preview clears
	CallDismiss     int //seconds before an unanswered incoming call clears
	MaxPinnedChats  int
	Statsd          string
	Redis           RedisConfig
}

//RedisConfig is the relay's pubsub connection.
type RedisConfig struct {
	Proto   string
	Address string
}

//Default returns the configuration used when no file has been loaded.
func Default() *Config {
	return &Config{
		Port:            "8080",
		DevelopmentMode: true,
		APIBase:         "http://localhost:8080",
		WSHost:          "ws://localhost:8080",
		MessagePageSize: 30,
		TypingExpiry:    5,
		CallDismiss:     20,
		MaxPinnedChats:  5,
		Redis:           RedisConfig{Proto: "tcp", Address: "localhost:6379"},
	}
}

//TypingWindow is the typing expiry as a duration.
func (c *Config) TypingWindow() time.Duration {
	return time.Duration(c.TypingExpiry) * time.Second
}

//CallWindow is the incoming-call auto-dismiss as a duration.
func (c *Config) CallWindow() time.Duration {
	return time.Duration(c.CallDismiss) * time.Second
}

//GetConfig returns a pointer to the current configuration.
func GetConfig() *Config {
	configLock.Lock()
	defer configLock.Unlock()
	if config == nil {
		config = Default()
	}
	return config
}

//Load reads configuration from path and installs it. It also arranges a
//reload on SIGUSR2 so a running relay can pick up changes.
func Load(path string) error {
	loadedPath = path
	if err := load(path); err != nil {
		return err
	}
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGUSR2)
	go func() {
		for {
			<-s
			if err := load(loadedPath); err != nil {
				log.Println("Reloading config failed:", err)
				continue
			}
			log.Println("Reloaded")
		}
	}()
	return nil
}

func load(path string) error {
	file, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	c := Default()
	if err = json.Unmarshal(file, c); err != nil {
		return err
	}
	configLock.Lock()
	config = c
	configLock.Unlock()
	return nil
}

//package main is caelium-relay: a development stand-in for the Caelium
//backend, serving the chat REST endpoints and websocket channels so the
//session core can be built and tested without production infrastructure.
package main

import (
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof"
	"runtime"
	"time"

	"github.com/CaeliumHQ/caelium-next/lib"
	"github.com/CaeliumHQ/caelium-next/lib/conf"
	"github.com/CaeliumHQ/caelium-next/lib/events"
	"github.com/gorilla/mux"
)

var (
	r       = mux.NewRouter()
	base    = r.PathPrefix("/api").Subrouter()
	relay   *Relay
	statter lib.PrefixStatter
)

//timeStat reports a handler's duration to statsd. (use it with defer)
func timeStat(start time.Time, bucket string) {
	statter.Time(start, bucket)
}

//Relay holds the in-memory conversation table and the fanout broker the
//socket handlers publish through.
type Relay struct {
	config *conf.Config
	store  *relayStore
	broker events.Broker
}

func newRelay(config *conf.Config, broker events.Broker) *Relay {
	return &Relay{config: config, store: newRelayStore(), broker: broker}
}

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	confPath := flag.String("conf", "conf.json", "path to config file")
	flag.Parse()
	if err := conf.Load(*confPath); err != nil {
		log.Println("No config file, using defaults:", err)
	}
	config := conf.GetConfig()
	var broker events.Broker
	if config.DevelopmentMode {
		broker = events.NewLocal()
	} else {
		broker = events.NewRedis(config.Redis)
	}
	relay = newRelay(config, broker)
	relay.seedDevData()
	statter = lib.NewStatter(config.Statsd, config.DevelopmentMode)
	server := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      r,
		ReadTimeout:  70 * time.Second,
		WriteTimeout: 70 * time.Second,
	}
	log.Println("caelium-relay listening on :" + config.Port)
	server.ListenAndServe()
}

package events

import (
	"log"

	"github.com/CaeliumHQ/caelium-next/lib/conf"
	"github.com/garyburd/redigo/redis"
)

//RedisBroker fans envelopes out over redis pubsub, so several relay nodes
//can serve the same conversations.
type RedisBroker struct {
	pool   *redis.Pool
	config conf.RedisConfig
}

//NewRedis constructs a RedisBroker from config.
func NewRedis(conf conf.RedisConfig) (broker *RedisBroker) {
	broker = new(RedisBroker)
	broker.config = conf
	broker.pool = redis.NewPool(dialer(conf), 100)
	return
}

func dialer(conf conf.RedisConfig) func() (redis.Conn, error) {
	return func() (redis.Conn, error) {
		conn, err := redis.Dial(conf.Proto, conf.Address)
		return conn, err
	}
}

//Publish broadcasts an already-encoded envelope to a channel key.
func (b *RedisBroker) Publish(channel string, data []byte) {
	conn := b.pool.Get()
	defer conn.Close()
	conn.Send("PUBLISH", channel, data)
	conn.Flush()
}

//Subscribe subscribes to the given channel keys and returns them as a
//combined MsgQueue.
func (b *RedisBroker) Subscribe(channels []string) (q MsgQueue) {
	q = MsgQueue{
		Commands: make(chan QueueCommand, 2),
		Messages: make(chan []byte),
	}
	conn := b.pool.Get()
	psc := redis.PubSubConn{Conn: conn}
	for _, s := range channels {
		psc.Subscribe(s)
	}
	go controller(&psc, q.Commands)
	go messageReceiver(&psc, q.Messages)
	return q
}

func messageReceiver(psc *redis.PubSubConn, messages chan<- []byte) {
	for {
		switch n := psc.Receive().(type) {
		case redis.Message:
			messages <- n.Data
		case redis.Subscription:
			if n.Count == 0 {
				//unsubscribed from everything; we're done here
				close(messages)
				psc.Conn.Close()
				return
			}
		case error:
			log.Println("events: redis receive error:", n)
			close(messages)
			return
		}
	}
}

func controller(psc *redis.PubSubConn, commands <-chan QueueCommand) {
	for {
		command, ok := <-commands
		if !ok {
			return
		}
		switch command.Command {
		case "UNSUBSCRIBE":
			if command.Value == "" {
				psc.Unsubscribe()
				return
			}
			psc.Unsubscribe(command.Value)
		case "SUBSCRIBE":
			psc.Subscribe(command.Value)
		}
	}
}

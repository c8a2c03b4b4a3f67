// booking_events consumes booking lifecycle events from RabbitMQ and appends
// them to a log file (stdout by default).
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lulufarm/internal/queue"
)

func main() {
	_ = godotenv.Load()
	out := flag.String("out", "", "append events to this file instead of stdout")
	flag.Parse()

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		url = os.Getenv("AMQP_URL")
	}
	if url == "" {
		log.Fatal("RABBITMQ_URL is required")
	}
	queueName := os.Getenv("BOOKING_EVENTS_QUEUE")
	if queueName == "" {
		queueName = "booking.events"
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.OpenFile(*out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("open %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Consuming %s", queueName)
	if err := queue.NewConsumer(url, queueName, queue.LogLineHandler(w)).Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("consumer: %v", err)
	}
	log.Println("Consumer stopped")
}

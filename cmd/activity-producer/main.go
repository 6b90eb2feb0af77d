package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// ActivitySubmission mirrors the engine's activity event format.
type ActivitySubmission struct {
	ActivityID    string `json:"activity_id,omitempty"`
	UserID        string `json:"user_id"`
	Type          string `json:"activity_type"`
	ReferenceID   string `json:"reference_id,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
}

// Weighted mix of activity types, reports deliberately rare.
var activityTypes = []struct {
	name   string
	weight int
}{
	{"LIKE", 50},
	{"COMMENT", 25},
	{"SAVE", 20},
	{"REPORT", 5},
}

func pickActivityType() string {
	n := rand.Intn(100)
	for _, t := range activityTypes {
		if n < t.weight {
			return t.name
		}
		n -= t.weight
	}
	return "LIKE"
}

func userID(idx int) string {
	return fmt.Sprintf("user-%04d", idx)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "activity-events", "Kafka topic")
	totalUsers := flag.Int("users", 1000, "Number of distinct users")
	eventsPerSecond := flag.Int("rate", 100, "Events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("Activity event producer")
	fmt.Printf("  Brokers:    %s\n", *brokers)
	fmt.Printf("  Topic:      %s\n", *topic)
	fmt.Printf("  Users:      %d\n", *totalUsers)
	fmt.Printf("  Events/sec: %d\n", *eventsPerSecond)
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendEvent := func(sub ActivitySubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(sub.UserID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var eventCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			// 70% of events come from the most active fifth of users
			var idx int
			active := *totalUsers / 5
			if active < 1 {
				active = 1
			}
			if rand.Intn(100) < 70 {
				idx = rand.Intn(active)
			} else {
				idx = rand.Intn(*totalUsers)
			}

			sendEvent(ActivitySubmission{
				ActivityID:    uuid.New().String(),
				UserID:        userID(idx),
				Type:          pickActivityType(),
				ReferenceID:   uuid.New().String(),
				ReferenceType: "content",
			})
			atomic.AddInt64(&eventCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&eventCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}

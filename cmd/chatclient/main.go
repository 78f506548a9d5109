// Command chatclient is a terminal client for the chat relay.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"chatrelay/internal"
	"chatrelay/internal/client"
)

func main() {
	addr := flag.String("addr", "localhost:12345", "Chat server address")
	name := flag.String("name", "", "Username, asked interactively when empty")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	stdin := bufio.NewScanner(os.Stdin)
	if strings.TrimSpace(*name) == "" {
		fmt.Print("Enter Your Username: ")
		if !stdin.Scan() {
			return
		}
		*name = stdin.Text()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c, err := client.Dial(ctx, *addr, *name)
	cancel()
	if errors.Is(err, client.ErrRejected) {
		log.Fatal("Username already exists! Choose another.")
	}
	if err != nil {
		log.WithError(err).Fatal("Connection failed")
	}
	defer c.Close()
	fmt.Printf("Connected as %s. /msg <user> <text> for private, /quit to leave.\n", c.Name())

	go func() {
		for msg := range c.Messages() {
			printMessage(msg)
		}
		if err := c.Err(); err != nil {
			log.WithError(err).Warn("Disconnected")
		} else {
			fmt.Println("Disconnected")
		}
		os.Exit(0)
	}()

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			c.Exit()
			<-c.Done()
			return
		case strings.HasPrefix(line, "/msg "):
			parts := strings.SplitN(strings.TrimPrefix(line, "/msg "), " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: /msg <user> <text>")
				continue
			}
			err = c.SendPrivate(parts[0], parts[1])
		default:
			err = c.Send(line)
		}
		if err != nil {
			log.WithError(err).Error("Send failed")
		}
	}
	c.Exit()
}

func printMessage(msg internal.Message) {
	clock := msg.Timestamp.Format(internal.TimeLayout)
	switch msg.Type {
	case internal.MessageTypeRoster:
		fmt.Printf("Online: %d (%s)\n", len(msg.Users), strings.Join(msg.Users, ", "))
	case internal.MessageTypePrivate:
		fmt.Printf("[%s] %s to You (private): %s\n", clock, msg.From, msg.Content)
	case internal.MessageTypeSent:
		fmt.Printf("[%s] You to %s (private): %s\n", clock, msg.To, msg.Content)
	default:
		fmt.Printf("[%s] %s: %s\n", clock, msg.From, msg.Content)
	}
}

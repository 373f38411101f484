package broker

import "strings"

// All chat topics live in one JetStream stream; a topic is the last token
// of the subject.
const (
	StreamName   = "CHAT"
	DefaultTopic = "chat-messages"
)

// Subject returns the NATS subject a topic is published on.
func Subject(topic string) string {
	return StreamName + "." + topic
}

var durableReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// durableName turns a consumer group identity into a valid durable name.
func durableName(group string) string {
	return durableReplacer.Replace(strings.TrimSpace(group))
}

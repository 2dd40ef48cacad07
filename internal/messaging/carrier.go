package messaging

import "github.com/segmentio/kafka-go"

// MessageCarrier adapts kafka message headers to propagation.TextMapCarrier.
type MessageCarrier struct {
	msg *kafka.Message
}

func NewMessageCarrier(msg *kafka.Message) *MessageCarrier {
	return &MessageCarrier{msg: msg}
}

func (c *MessageCarrier) Get(key string) string {
	if h := c.find(key); h != nil {
		return string(h.Value)
	}
	return ""
}

func (c *MessageCarrier) Set(key, value string) {
	if h := c.find(key); h != nil {
		h.Value = []byte(value)
		return
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *MessageCarrier) find(key string) *kafka.Header {
	for i := range c.msg.Headers {
		if c.msg.Headers[i].Key == key {
			return &c.msg.Headers[i]
		}
	}
	return nil
}

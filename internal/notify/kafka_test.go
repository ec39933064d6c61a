package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kvstore-sol/internal/types"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureProducer struct {
	mu   sync.Mutex
	msgs []*kafka.Message
	err  error
}

func (p *captureProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	msg.TopicPartition.Error = p.err
	deliveryChan <- msg
	return nil
}

func testAddress() types.Pubkey {
	var addr types.Pubkey
	for i := range addr {
		addr[i] = byte(i + 1)
	}
	return addr
}

func TestRecordEventCodec(t *testing.T) {
	bt := int64(1_700_000_000)
	ev := &RecordEvent{
		Type:      EventUpdated,
		Address:   testAddress(),
		Data:      []byte("world"),
		Signature: "5sig",
		Slot:      1234,
		BlockTime: &bt,
	}

	data, err := EncodeRecordEvent(ev)
	require.NoError(t, err)

	got, err := DecodeRecordEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	t.Run("deleted without block time", func(t *testing.T) {
		data, err := EncodeRecordEvent(&RecordEvent{Type: EventDeleted, Address: testAddress(), Slot: 9})
		require.NoError(t, err)
		got, err := DecodeRecordEvent(data)
		require.NoError(t, err)
		assert.Equal(t, EventDeleted, got.Type)
		assert.Empty(t, got.Data)
		assert.Nil(t, got.BlockTime)
	})
}

func TestKafkaPublisher(t *testing.T) {
	producer := &captureProducer{}
	p := &KafkaPublisher{sender: producer, topic: "records", partitions: 4, timeout: time.Second}
	addr := testAddress()

	err := p.Publish(context.Background(),
		&RecordEvent{Type: EventCreated, Address: addr, Data: []byte("hello")},
		&RecordEvent{Type: EventUpdated, Address: addr, Data: []byte("world")},
	)
	require.NoError(t, err)
	require.Len(t, producer.msgs, 2)
	for _, msg := range producer.msgs {
		assert.Equal(t, "records", *msg.TopicPartition.Topic)
		assert.Equal(t, int32(addr[27]&3), msg.TopicPartition.Partition)
		assert.Equal(t, addr[:], msg.Key)
	}

	t.Run("delivery failure", func(t *testing.T) {
		producer.err = errors.New("broker down")
		err := p.Publish(context.Background(), &RecordEvent{Type: EventDeleted, Address: addr})
		assert.ErrorContains(t, err, "broker down")
	})

	t.Run("no events", func(t *testing.T) {
		assert.NoError(t, p.Publish(context.Background()))
	})

	// 未持有真实生产者时 Close 为空操作
	p.Close()
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventCreated.String())
	assert.Equal(t, "deleted", EventDeleted.String())
	assert.Equal(t, "unknown(9)", EventType(9).String())
}

package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"kvstore-sol/internal/config"
	"kvstore-sol/internal/mq"
	"kvstore-sol/internal/types"
	"kvstore-sol/internal/utils"
	"kvstore-sol/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"google.golang.org/protobuf/types/known/structpb"
)

// KafkaPublisher 把记录变更事件发送到 Kafka，按记录地址选择分区
type KafkaPublisher struct {
	producer   *kafka.Producer
	sender     mq.Producer
	topic      string
	partitions uint32
	timeout    time.Duration
}

func NewKafkaPublisher(cfg config.KafkaProducerConfig, sendTimeout time.Duration) (*KafkaPublisher, error) {
	producer, err := mq.NewKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{
		producer:   producer,
		sender:     producer,
		topic:      cfg.Topic,
		partitions: uint32(cfg.Partitions),
		timeout:    sendTimeout,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...*RecordEvent) error {
	if len(events) == 0 {
		return nil
	}

	jobs := make([]*mq.KafkaJob, 0, len(events))
	for _, ev := range events {
		value, err := EncodeRecordEvent(ev)
		if err != nil {
			return err
		}
		jobs = append(jobs, &mq.KafkaJob{
			Topic:     p.topic,
			Partition: int32(utils.PartitionHashBytes(ev.Address[:], p.partitions)),
			Key:       ev.Address[:],
			Value:     value,
		})
	}

	_, failed := mq.SendKafkaJobs(ctx, p.sender, jobs, p.timeout)
	if len(failed) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(failed))
	for _, f := range failed {
		msgs = append(msgs, f.Err.Error())
	}
	return fmt.Errorf("kafka: %d/%d events failed: %s", len(failed), len(jobs), strings.Join(msgs, "; "))
}

// Close 等待未完成的投递后关闭生产者
func (p *KafkaPublisher) Close() {
	if p.producer == nil {
		return
	}
	if remaining := p.producer.Flush(5000); remaining > 0 {
		logger.Warnf("[notify] %d events still in queue on close", remaining)
	}
	p.producer.Close()
}

// EncodeRecordEvent 事件结构：4 字节事件类型 | protobuf Struct
//
//	{"address": base58, "data": base64, "signature": base58, "slot": number, "block_time": number}
func EncodeRecordEvent(ev *RecordEvent) ([]byte, error) {
	fields := map[string]any{
		"address":   ev.Address.String(),
		"data":      base64.StdEncoding.EncodeToString(ev.Data),
		"signature": ev.Signature,
		"slot":      float64(ev.Slot),
	}
	if ev.BlockTime != nil {
		fields["block_time"] = float64(*ev.BlockTime)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build event: %w", err)
	}
	return utils.EncodeEvent(uint32(ev.Type), msg)
}

func DecodeRecordEvent(data []byte) (*RecordEvent, error) {
	var msg structpb.Struct
	typ, err := utils.DecodeEvent(data, &msg)
	if err != nil {
		return nil, err
	}

	fields := msg.GetFields()
	address, err := types.TryPubkeyFromBase58(fields["address"].GetStringValue())
	if err != nil {
		return nil, err
	}
	payload, err := base64.StdEncoding.DecodeString(fields["data"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}

	ev := &RecordEvent{
		Type:      EventType(typ),
		Address:   address,
		Data:      payload,
		Signature: fields["signature"].GetStringValue(),
		Slot:      uint64(fields["slot"].GetNumberValue()),
	}
	if bt, ok := fields["block_time"]; ok {
		ts := int64(bt.GetNumberValue())
		ev.BlockTime = &ts
	}
	return ev, nil
}

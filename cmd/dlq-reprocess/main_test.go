package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/gwatkins2090/portfolio/internal/messaging/kafka"
)

const contentDeadLetter = `{"original_topic":"portfolio.content.revalidate","original_key":"web-1","original_value":"{\"tags\":[\"artwork\"]}"}`

func cartDeadLetter(t *testing.T, withOriginal bool) []byte {
	t.Helper()

	letter := map[string]any{
		"outbox_id":      "outbox-1",
		"aggregate_type": "cart",
		"session_id":     "session-1",
		"event_type":     "cart.item_added",
		"publish_error":  "timeout",
	}
	if withOriginal {
		letter["payload"] = map[string]any{"artwork_id": "harbor-at-dawn", "quantity": 2}
	}
	payload, err := json.Marshal(letter)
	if err != nil {
		t.Fatalf("marshal letter: %v", err)
	}
	raw, err := json.Marshal(kafka.CartEventEnvelope{
		ID:            "outbox-1",
		AggregateType: "cart",
		SessionID:     "session-1",
		EventType:     "cart.item_added",
		Payload:       payload,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestExtractReplayMessage_ContentDeadLetter(t *testing.T) {
	got, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(contentDeadLetter)}, streamContent, "fallback-topic")
	if err != nil || !ok {
		t.Fatalf("expected replay candidate, ok=%v err=%v", ok, err)
	}
	if got.topic != kafka.TopicContentRevalidate || got.key != "web-1" {
		t.Fatalf("unexpected replay target: %+v", got)
	}
	if string(got.value) != `{"tags":["artwork"]}` {
		t.Fatalf("unexpected replay value: %s", got.value)
	}
}

func TestExtractReplayMessage_CartDeadLetter(t *testing.T) {
	got, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: cartDeadLetter(t, true)}, streamCart, kafka.TopicCartEvents)
	if err != nil || !ok {
		t.Fatalf("expected replay candidate, ok=%v err=%v", ok, err)
	}
	if got.topic != kafka.TopicCartEvents || got.key != "session-1" {
		t.Fatalf("unexpected replay target: %+v", got)
	}

	envelope, err := kafka.ParseCartEventEnvelope(&sarama.ConsumerMessage{Value: got.value})
	if err != nil {
		t.Fatalf("replay must be a cart envelope: %v", err)
	}
	if envelope.EventType != "cart.item_added" || envelope.SessionID != "session-1" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if !strings.Contains(string(envelope.Payload), "harbor-at-dawn") {
		t.Fatalf("original payload must be restored: %s", envelope.Payload)
	}
	if len(got.headers) != 2 || string(got.headers[0].Value) != "cart.item_added" {
		t.Fatalf("unexpected headers: %+v", got.headers)
	}
}

func TestExtractReplayMessage_CartMissingOriginal(t *testing.T) {
	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: cartDeadLetter(t, false)}, streamCart, kafka.TopicCartEvents)
	if err == nil || ok {
		t.Fatalf("expected error for missing original payload, ok=%v err=%v", ok, err)
	}
}

func TestExtractReplayMessage_UnknownPayload(t *testing.T) {
	for _, stream := range []string{streamCart, streamContent} {
		_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, stream, "topic")
		if err != nil || ok {
			t.Fatalf("%s: expected message to be skipped, ok=%v err=%v", stream, ok, err)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestReadConfig_StreamDefaults(t *testing.T) {
	cfg, err := readConfig(nil, envMap(map[string]string{"PORTFOLIO_KAFKA_BROKERS": "broker:9092"}))
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.sourceTopic != kafka.TopicCartDLQ || cfg.targetTopic != kafka.TopicCartEvents || cfg.execute {
		t.Fatalf("unexpected cart defaults: %+v", cfg)
	}

	cfg, err = readConfig([]string{"-brokers=b1:9092,b2:9092", "-stream=Content", "-execute", "-from-newest", "-limit=10", "-idle-timeout=3s"}, envMap(nil))
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.sourceTopic != kafka.TopicContentDLQ || cfg.targetTopic != kafka.TopicContentRevalidate {
		t.Fatalf("unexpected content defaults: %+v", cfg)
	}
	if len(cfg.brokers) != 2 || !cfg.execute || !cfg.fromNewest || cfg.limit != 10 || cfg.idleTimeout != 3*time.Second {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{args: []string{"-brokers="}, want: "kafka brokers are required"},
		{args: []string{"-brokers=b:9092", "-stream=orders"}, want: "unsupported stream"},
		{args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit must be > 0"},
		{args: []string{"-brokers=b:9092", "-idle-timeout=0s"}, want: "idle-timeout must be > 0"},
	}
	for _, tc := range cases {
		_, err := readConfig(tc.args, envMap(nil))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%v: expected %q, got %v", tc.args, tc.want, err)
		}
	}
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, replayMessage{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	if err := publishReplay(producer, replayMessage{topic: "topic", key: "key", value: []byte(`{"x":1}`)}); err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.calls != 1 || producer.lastMsg.Topic != "topic" {
		t.Fatalf("unexpected producer state: %+v", producer)
	}

	producer.sendErr = errors.New("send failed")
	if err := publishReplay(producer, replayMessage{topic: "topic"}); err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func contentConfig(execute bool) config {
	return config{
		stream:      streamContent,
		sourceTopic: kafka.TopicContentDLQ,
		targetTopic: kafka.TopicContentRevalidate,
		execute:     execute,
		limit:       10,
		idleTimeout: 20 * time.Millisecond,
	}
}

func TestProcessPartition_DryRunAndExecute(t *testing.T) {
	for _, execute := range []bool{false, true} {
		client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
		consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: []byte(contentDeadLetter)}}),
		}}
		producer := &stubReplayProducer{}

		stats, err := processPartition(context.Background(), consumer, client, producer, contentConfig(execute), 0, 10)
		if err != nil {
			t.Fatalf("processPartition failed: %v", err)
		}
		if stats.processed != 1 || stats.replayed != 1 || stats.skipped != 0 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
		wantCalls := 0
		if execute {
			wantCalls = 1
		}
		if producer.calls != wantCalls {
			t.Fatalf("execute=%v: expected %d producer calls, got %d", execute, wantCalls, producer.calls)
		}
	}
}

func TestProcessPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 3, newest: 10}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(nil),
	}}
	cfg := contentConfig(false)
	cfg.fromNewest = true

	if _, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 2); err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 8 {
		t.Fatalf("expected to start at newest-limit, got %+v", consumer.calls)
	}
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := contentConfig(true)

	offsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	if _, err := processPartition(context.Background(), &stubPartitionConsumerSource{}, offsetErr, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	if _, err := processPartition(context.Background(), &stubPartitionConsumerSource{consumeErr: errors.New("consume")}, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	if _, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consumer error branch")
	}

	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: []byte(`not json`)}}),
	}}
	stats, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1)
	if err != nil || stats.skipped != 1 {
		t.Fatalf("expected skipped message, stats=%+v err=%v", stats, err)
	}

	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Offset: 0, Value: []byte(contentDeadLetter)}}),
	}}
	if _, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{sendErr: errors.New("send fail")}, cfg, 0, 1); err == nil {
		t.Fatal("expected producer send error")
	}
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := contentConfig(false)
	cfg.idleTimeout = 10 * time.Millisecond

	idle := &stubPartitionConsumer{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	stats, err := processPartition(context.Background(), &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idle}}, client, nil, cfg, 0, 1)
	if err != nil || stats.processed != 0 {
		t.Fatalf("expected idle exit, stats=%+v err=%v", stats, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.idleTimeout = time.Minute
	blocked := &stubPartitionConsumer{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	if _, err := processPartition(ctx, &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: blocked}}, client, nil, cfg, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRunReplay(t *testing.T) {
	cfg := contentConfig(false)
	cfg.limit = 1

	if _, err := runReplay(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}, 2: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 0, Value: []byte(contentDeadLetter)}}),
		2: closedPartitionConsumer([]*sarama.ConsumerMessage{{Partition: 2, Value: []byte(contentDeadLetter)}}),
	}}

	stats, err := runReplay(context.Background(), cfg, client, consumer, nil)
	if err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if stats.replayed != 1 || len(consumer.calls) != 1 || consumer.calls[0].partition != 0 {
		t.Fatalf("limit=1 must stop after the first sorted partition: stats=%+v calls=%+v", stats, consumer.calls)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if _, err := runReplay(context.Background(), executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	if _, err := runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_ClosesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), contentConfig(false)); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{partitions: []int32{0}, offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer([]*sarama.ConsumerMessage{{Value: []byte(contentDeadLetter)}}),
	}}
	producer := &stubReplayProducer{}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	if err := run(context.Background(), contentConfig(true)); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
	if producer.calls != 1 {
		t.Fatalf("expected one replayed message, got %d", producer.calls)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions []int32
	offsets    map[int32]offsetRange
	offsetErr  map[int32]error
	closed     bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error                             { return nil }

// closedPartitionConsumer отдаёт сообщения и закрывает канал; ошибок нет.
func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}

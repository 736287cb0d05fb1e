package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names. The outbox delivery task carries the same name as the
// in-process event it mirrors.
const (
	TaskOutboxDelivery = "notification.outbox.due"
	TaskCallArchive    = "calls.archive.upload"
)

type OutboxDeliveryPayload struct {
	OutboxID string `json:"outboxId"`
}

type CallArchivePayload struct {
	CallID string `json:"callId"`
}

func NewOutboxDeliveryTask(payload OutboxDeliveryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxDelivery, data), nil
}

func ParseOutboxDeliveryPayload(task *asynq.Task) (OutboxDeliveryPayload, error) {
	var payload OutboxDeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxDeliveryPayload{}, err
	}
	return payload, nil
}

func NewCallArchiveTask(payload CallArchivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallArchive, data), nil
}

func ParseCallArchivePayload(task *asynq.Task) (CallArchivePayload, error) {
	var payload CallArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CallArchivePayload{}, err
	}
	return payload, nil
}

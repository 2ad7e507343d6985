package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS stores runs in a JetStream key-value bucket. The bucket revision
// backs the fingerprint check, so a writer that lost a race between its
// read and its update still fails.
type NATS struct {
	nc    *nats.Conn
	kv    nats.KeyValue
	owned bool
}

type kvValue struct {
	Fingerprint string    `json:"fingerprint"`
	Data        []byte    `json:"data"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OpenNATS connects to url and binds (or creates) bucket.
func OpenNATS(url, bucket string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("sitegen-statestore"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	s, err := NewNATS(nc, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNATS uses an existing connection. The caller keeps ownership of nc.
func NewNATS(nc *nats.Conn, bucket string) (*NATS, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "sitegen pipeline run state",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind kv bucket %s: %w", bucket, err)
	}
	return &NATS{nc: nc, kv: kv}, nil
}

func (s *NATS) Save(ctx context.Context, runID, fingerprint string, data []byte) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	value, err := encodeKV(fingerprint, data)
	if err != nil {
		return err
	}
	if _, err := s.kv.Create(runID, value); err != nil {
		if errors.Is(err, nats.ErrKeyExists) || wrongSequence(err) {
			return ErrExists
		}
		return fmt.Errorf("create run %s in kv: %w", runID, err)
	}
	return nil
}

func (s *NATS) Load(ctx context.Context, runID string) (Record, error) {
	_, v, err := s.get(runID)
	if err != nil {
		return Record{}, err
	}
	return Record{RunID: runID, Fingerprint: v.Fingerprint, Data: v.Data, UpdatedAt: v.UpdatedAt}, nil
}

func (s *NATS) CompareAndSwap(ctx context.Context, runID, expected, fingerprint string, data []byte) error {
	entry, v, err := s.get(runID)
	if err != nil {
		return err
	}
	if v.Fingerprint != expected {
		return ErrConflict
	}
	value, err := encodeKV(fingerprint, data)
	if err != nil {
		return err
	}
	if _, err := s.kv.Update(runID, value, entry.Revision()); err != nil {
		if wrongSequence(err) {
			return ErrConflict
		}
		return fmt.Errorf("update run %s in kv: %w", runID, err)
	}
	return nil
}

func (s *NATS) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list kv keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *NATS) Close() error {
	if s.owned {
		s.nc.Close()
	}
	return nil
}

func (s *NATS) get(runID string) (nats.KeyValueEntry, kvValue, error) {
	entry, err := s.kv.Get(runID)
	if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrInvalidKey) {
		return nil, kvValue{}, ErrNotFound
	}
	if err != nil {
		return nil, kvValue{}, fmt.Errorf("get run %s from kv: %w", runID, err)
	}
	var v kvValue
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, kvValue{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return entry, v, nil
}

func encodeKV(fingerprint string, data []byte) ([]byte, error) {
	b, err := json.Marshal(kvValue{Fingerprint: fingerprint, Data: data, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode kv value: %w", err)
	}
	return b, nil
}

func wrongSequence(err error) bool {
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

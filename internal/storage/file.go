package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "telenotify/pkg/logx"
)

// recentCap is how many delivery records the file store keeps in memory for
// RecentDeliveries.
const recentCap = 200

// fileStore writes JSON Lines.
//
// Files:
//   - <prefix>.audit.jsonl      (append-only)
//   - <prefix>.deliveries.jsonl (append-only)
//
// The tail of the deliveries file is replayed on open so RecentDeliveries
// survives restarts.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile    *os.File
	deliveryFile *os.File

	// recent is a ring of the last recentCap records; next is the write slot.
	recent []DeliveryRecord
	next   int
	full   bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	st := &fileStore{log: log, auditFile: af, recent: make([]DeliveryRecord, recentCap)}
	deliveriesPath := prefix + ".deliveries.jsonl"
	if err := st.replay(deliveriesPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery journal replay failed", logx.String("path", deliveriesPath), logx.Err(err))
	}

	df, err := os.OpenFile(deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	st.deliveryFile = df
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.deliveryFile != nil {
		err2 = s.deliveryFile.Close()
		s.deliveryFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) RecordDelivery(_ context.Context, r DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.deliveryFile).Encode(r); err != nil {
		return err
	}
	s.pushLocked(r)
	return nil
}

func (s *fileStore) RecentDeliveries(_ context.Context, n int) ([]DeliveryRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.next
	if s.full {
		size = len(s.recent)
	}
	if n > size {
		n = size
	}
	out := make([]DeliveryRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.recent)) % len(s.recent)
		out = append(out, s.recent[idx])
	}
	return out, nil
}

func (s *fileStore) pushLocked(r DeliveryRecord) {
	s.recent[s.next] = r
	s.next++
	if s.next == len(s.recent) {
		s.next = 0
		s.full = true
	}
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == "" {
			continue
		}
		s.pushLocked(r)
	}
	return sc.Err()
}

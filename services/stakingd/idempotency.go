package stakingd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"github.com/tuturu-tech/nft-staking/gateway/middleware"
)

const (
	headerIdempotency      = "Idempotency-Key"
	headerIdempotencyCache = "X-Idempotency-Cache"
	defaultIdempotencyTTL  = 24 * time.Hour
	maxIdempotencyKeyLen   = 128
	maxRequestBody         = 1 << 20
)

var bucketIdempotency = []byte("idempotency")

// IdempotencyRecord stores the response produced for an idempotency key.
type IdempotencyRecord struct {
	Fingerprint string    `json:"fingerprint"`
	StatusCode  int       `json:"statusCode"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"storedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IdempotencyStore keeps cached responses in a BoltDB file.
type IdempotencyStore struct {
	db       *bolt.DB
	ttl      time.Duration
	now      func() time.Time
	inflight sync.Map
	logger   *slog.Logger
}

// OpenIdempotencyStore opens (or creates) the store at path.
func OpenIdempotencyStore(path string, ttl time.Duration, logger *slog.Logger) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now, logger: logger}, nil
}

// Close releases the Bolt handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached response for key when it has not expired. Expired
// records are deleted.
func (s *IdempotencyStore) Get(key string) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	found := false
	now := s.now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if now.After(record.ExpiresAt) {
			record = IdempotencyRecord{}
			return bucket.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return record, found, nil
}

// Put stores record under key, stamping its expiry.
func (s *IdempotencyStore) Put(key string, record IdempotencyRecord) error {
	now := s.now()
	record.StoredAt = now
	record.ExpiresAt = now.Add(s.ttl)
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), encoded)
	})
}

// Middleware replays the stored response when a request repeats an
// Idempotency-Key. Requests without the header pass straight through. It must
// run after authentication so keys are scoped to the caller.
func (s *IdempotencyStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idem := strings.TrimSpace(r.Header.Get(headerIdempotency))
		if idem == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(idem) > maxIdempotencyKeyLen {
			writeError(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key too long", nil)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller, _ := middleware.CallerFromContext(r.Context())
		key := idempotencyKey(caller.Hex(), r.Method, r.URL.Path, idem)
		fingerprint := fingerprintOf(body)

		if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
			writeError(w, http.StatusConflict, "idempotency_in_progress", "a request with this Idempotency-Key is in progress", nil)
			return
		}
		defer s.inflight.Delete(key)

		record, ok, err := s.Get(key)
		if err != nil {
			s.logger.Error("idempotency: lookup", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "idempotency store unavailable", nil)
			return
		}
		if ok {
			if record.Fingerprint != fingerprint {
				writeError(w, http.StatusUnprocessableEntity, "idempotency_mismatch", "Idempotency-Key reused with a different request body", nil)
				return
			}
			writeCachedResponse(w, record)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return
		}
		if err := s.Put(key, IdempotencyRecord{Fingerprint: fingerprint, StatusCode: rec.status, Body: rec.body.Bytes()}); err != nil {
			s.logger.Warn("idempotency: store response", "error", err)
		}
	})
}

func idempotencyKey(caller, method, path, idem string) string {
	return fmt.Sprintf("%s|%s|%s|%s", strings.ToLower(caller), method, path, idem)
}

func fingerprintOf(body []byte) string {
	sum := blake3.Sum256(bytes.TrimSpace(body))
	return hex.EncodeToString(sum[:])
}

func writeCachedResponse(w http.ResponseWriter, record IdempotencyRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerIdempotencyCache, "hit")
	w.WriteHeader(record.StatusCode)
	_, _ = w.Write(record.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

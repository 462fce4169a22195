// Package memory adaptadores en memoria de los puertos de persistencia.
// Sirven para tests (en especial los de concurrencia del claim) y para correr
// el motor sin base de datos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/entity"
	"github.com/GiacomoGonzales/cobrify-sub003/internal/domain/repository"
)

var _ repository.DocumentClaims = (*Claims)(nil)

type claimState struct {
	status    entity.SubmissionStatus
	startedAt time.Time
}

// Claims misma semántica CAS que el adaptador postgres: el mutex cubre el
// read-modify-write completo, así dos Claim concurrentes resuelven en
// exactamente un ganador.
type Claims struct {
	mu     sync.Mutex
	states map[string]*claimState
}

func NewClaims() *Claims {
	return &Claims{states: make(map[string]*claimState)}
}

func (c *Claims) Claim(_ context.Context, documentID string, now time.Time, staleAfter time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[documentID]
	if !ok {
		st = &claimState{status: entity.StatusPending}
		c.states[documentID] = st
	}
	switch {
	case st.status == entity.StatusPending:
	case st.status == entity.StatusSending && st.startedAt.Before(now.Add(-staleAfter)):
	default:
		return false, nil
	}
	st.status = entity.StatusSending
	st.startedAt = now
	return true, nil
}

func (c *Claims) Release(_ context.Context, documentID string, status entity.SubmissionStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[documentID]; ok && st.status == entity.StatusSending {
		st.status = status
	}
	return nil
}

// Status estado actual del documento (para aserciones en tests).
func (c *Claims) Status(documentID string) entity.SubmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[documentID]; ok {
		return st.status
	}
	return entity.StatusPending
}

var _ repository.AttemptRepository = (*Attempts)(nil)

// Attempts bitácora en memoria.
type Attempts struct {
	mu       sync.Mutex
	attempts map[string][]*entity.SubmissionAttempt
}

func NewAttempts() *Attempts {
	return &Attempts{attempts: make(map[string][]*entity.SubmissionAttempt)}
}

func (a *Attempts) Save(_ context.Context, attempt *entity.SubmissionAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *attempt
	a.attempts[attempt.DocumentID] = append(a.attempts[attempt.DocumentID], &cp)
	return nil
}

func (a *Attempts) CountRetries(_ context.Context, documentID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attempts[documentID]), nil
}

// ByDocument intentos registrados (para aserciones en tests).
func (a *Attempts) ByDocument(documentID string) []*entity.SubmissionAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*entity.SubmissionAttempt(nil), a.attempts[documentID]...)
}

var _ repository.ArtifactStore = (*Artifacts)(nil)

// Artifacts almacén de artefactos en memoria, direccionado por documento/nombre.
type Artifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewArtifacts() *Artifacts {
	return &Artifacts{files: make(map[string][]byte)}
}

func (s *Artifacts) Save(_ context.Context, _, documentID, filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[documentID+"/"+filename] = append([]byte(nil), data...)
	return nil
}

// Get contenido guardado (para aserciones en tests).
func (s *Artifacts) Get(documentID, filename string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[documentID+"/"+filename]
	return b, ok
}

package posting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger/internal/accounting/numbering"
	"github.com/odyssey-erp/ledger/internal/accounting/settings"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/idempotency"
	kinds "github.com/odyssey-erp/ledger/internal/shared"
)

// memoryState is one committed snapshot of the in-memory ledger.
type memoryState struct {
	docs       map[int64]Document
	headers    map[int64]journals.Header
	settings   map[int64]settings.OrgSettings
	accounts   map[int64]accounts.Account
	mappings   map[string]int64
	idem       map[string]idempotency.Record
	audits     []kinds.AuditLog
	nextHeader int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		docs:       make(map[int64]Document, len(s.docs)),
		headers:    make(map[int64]journals.Header, len(s.headers)),
		settings:   make(map[int64]settings.OrgSettings, len(s.settings)),
		accounts:   make(map[int64]accounts.Account, len(s.accounts)),
		mappings:   make(map[string]int64, len(s.mappings)),
		idem:       make(map[string]idempotency.Record, len(s.idem)),
		audits:     append([]kinds.AuditLog(nil), s.audits...),
		nextHeader: s.nextHeader,
	}
	for k, v := range s.docs {
		out.docs[k] = v
	}
	for k, v := range s.headers {
		out.headers[k] = v
	}
	for k, v := range s.settings {
		out.settings[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.mappings {
		out.mappings[k] = v
	}
	for k, v := range s.idem {
		out.idem[k] = v
	}
	return out
}

// memoryRepository serializes units of work and discards the working copy
// when fn fails, mirroring a rolled back transaction.
type memoryRepository struct {
	mu    sync.Mutex
	state memoryState
	now   time.Time
}

func newMemoryRepository(now time.Time) *memoryRepository {
	return &memoryRepository{
		state: memoryState{
			docs:     map[int64]Document{},
			headers:  map[int64]journals.Header{},
			settings: map[int64]settings.OrgSettings{},
			accounts: map[int64]accounts.Account{},
			mappings: map[string]int64{},
			idem:     map[string]idempotency.Record{},
		},
		now: now,
	}
}

func (m *memoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, &memoryTx{state: &work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memoryRepository) addAccount(a accounts.Account) {
	m.state.accounts[a.ID] = a
}

func (m *memoryRepository) mapAccount(orgID int64, key string, accountID int64) {
	m.state.mappings[mappingKey(orgID, key)] = accountID
}

func (m *memoryRepository) putDocument(d Document) {
	m.state.docs[d.ID] = d
}

func (m *memoryRepository) putSettings(s settings.OrgSettings) {
	m.state.settings[s.OrgID] = s
}

func (m *memoryRepository) document(id int64) Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.docs[id]
}

func (m *memoryRepository) header(id int64) journals.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.headers[id]
}

func (m *memoryRepository) headerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.headers)
}

func (m *memoryRepository) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.state.audits))
	for _, a := range m.state.audits {
		out = append(out, a.Action)
	}
	return out
}

func mappingKey(orgID int64, key string) string {
	return fmt.Sprintf("%d/%s", orgID, key)
}

type memoryTx struct {
	state *memoryState
	now   time.Time
}

func (t *memoryTx) FindIdempotencyRecord(_ context.Context, orgID int64, key string) (idempotency.Record, bool, error) {
	rec, ok := t.state.idem[fmt.Sprintf("%d/%s", orgID, key)]
	return rec, ok, nil
}

func (t *memoryTx) InsertIdempotencyRecord(_ context.Context, rec idempotency.Record) error {
	k := fmt.Sprintf("%d/%s", rec.OrgID, rec.Key)
	if _, ok := t.state.idem[k]; ok {
		return idempotency.ErrDuplicateKey
	}
	t.state.idem[k] = rec
	return nil
}

func (t *memoryTx) GetDocumentForUpdate(_ context.Context, orgID, documentID int64) (Document, error) {
	doc, ok := t.state.docs[documentID]
	if !ok || doc.OrgID != orgID {
		return Document{}, shared.ErrDocumentNotFound
	}
	return doc, nil
}

func (t *memoryTx) GetDocumentsForUpdate(_ context.Context, orgID int64, ids []int64) (map[int64]Document, error) {
	out := make(map[int64]Document, len(ids))
	for _, id := range ids {
		if doc, ok := t.state.docs[id]; ok && doc.OrgID == orgID {
			out[id] = doc
		}
	}
	return out, nil
}

func (t *memoryTx) MarkDocumentPosted(_ context.Context, doc Document) error {
	for _, other := range t.state.docs {
		if other.ID != doc.ID && other.OrgID == doc.OrgID && other.Type == doc.Type && other.Number == doc.Number {
			return shared.ErrDuplicateNumber
		}
	}
	t.state.docs[doc.ID] = doc
	return nil
}

func (t *memoryTx) MarkDocumentVoided(_ context.Context, doc Document) error {
	t.state.docs[doc.ID] = doc
	return nil
}

func (t *memoryTx) UpdatePaymentState(_ context.Context, doc Document) error {
	stored := t.state.docs[doc.ID]
	stored.AmountPaid = doc.AmountPaid
	stored.PaymentStatus = doc.PaymentStatus
	t.state.docs[doc.ID] = stored
	return nil
}

func (t *memoryTx) GetSettingsForUpdate(_ context.Context, orgID int64) (settings.OrgSettings, error) {
	if s, ok := t.state.settings[orgID]; ok {
		return s, nil
	}
	s := settings.Defaults(orgID)
	t.state.settings[orgID] = s
	return s, nil
}

func (t *memoryTx) SaveNumbering(_ context.Context, orgID int64, formats numbering.Formats) error {
	s := t.state.settings[orgID]
	s.OrgID = orgID
	s.Numbering = formats
	t.state.settings[orgID] = s
	return nil
}

func (t *memoryTx) GetAccounts(_ context.Context, orgID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.state.accounts[id]; ok && a.OrgID == orgID {
			out[id] = a
		}
	}
	return out, nil
}

func (t *memoryTx) GetMapping(_ context.Context, orgID int64, key string) (mappings.AccountMapping, error) {
	id, ok := t.state.mappings[mappingKey(orgID, key)]
	if !ok {
		return mappings.AccountMapping{}, fmt.Errorf("%w: %s", shared.ErrMappingNotFound, key)
	}
	return mappings.AccountMapping{OrgID: orgID, Key: key, AccountID: id}, nil
}

func (t *memoryTx) InsertHeader(_ context.Context, in journals.HeaderInput) (journals.Header, error) {
	totals, err := in.Validate()
	if err != nil {
		return journals.Header{}, err
	}
	for _, h := range t.state.headers {
		if h.OrgID == in.OrgID && h.SourceType == in.SourceType && h.SourceID == in.SourceID {
			return journals.Header{}, shared.ErrSourceAlreadyLinked
		}
	}
	t.state.nextHeader++
	h := journals.Header{
		ID:               t.state.nextHeader,
		OrgID:            in.OrgID,
		SourceType:       in.SourceType,
		SourceID:         in.SourceID,
		PostingDate:      in.PostingDate,
		Currency:         in.Currency,
		ExchangeRate:     in.ExchangeRate,
		TotalDebit:       totals.Debit,
		TotalCredit:      totals.Credit,
		Status:           journals.HeaderStatusPosted,
		ReversesHeaderID: in.ReversesHeaderID,
		Memo:             in.Memo,
		PostedBy:         in.PostedBy,
		CreatedAt:        t.now,
	}
	h.Lines = journals.ToLines(h.ID, in.Lines)
	t.state.headers[h.ID] = h
	return h, nil
}

func (t *memoryTx) GetHeaderForUpdate(_ context.Context, orgID, headerID int64) (journals.Header, error) {
	h, ok := t.state.headers[headerID]
	if !ok || h.OrgID != orgID {
		return journals.Header{}, shared.ErrHeaderNotFound
	}
	return h, nil
}

func (t *memoryTx) FindHeaderBySource(_ context.Context, orgID int64, sourceType journals.SourceType, sourceID string) (journals.Header, error) {
	for _, h := range t.state.headers {
		if h.OrgID == orgID && h.SourceType == sourceType && h.SourceID == sourceID {
			return h, nil
		}
	}
	return journals.Header{}, shared.ErrHeaderNotFound
}

func (t *memoryTx) LinkReversal(_ context.Context, orgID, originalID, reversalID int64) error {
	h, ok := t.state.headers[originalID]
	if !ok || h.OrgID != orgID {
		return shared.ErrHeaderNotFound
	}
	if h.ReversedByHeaderID != nil {
		return shared.ErrInvalidStatus
	}
	h.ReversedByHeaderID = &reversalID
	t.state.headers[originalID] = h
	return nil
}

func (t *memoryTx) RecordAudit(_ context.Context, log kinds.AuditLog) error {
	t.state.audits = append(t.state.audits, log)
	return nil
}

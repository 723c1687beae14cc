package clients

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saleslog/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Normalize / Similarity
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"나산", "나산"},
		{"(주)나산", "나산"},
		{"（주）나산", "나산"},
		{"주식회사 나산", "나산"},
		{"주식회사나산", "나산"},
		{"㈜나산", "나산"},
		{"주나산", "나산"},    // abbreviated 주식회사 prefix
		{"유한회사 한빛", "한빛"},
		{"  삼성  전자  ", "삼성 전자"},
		{"ACME Corp", "acme corp"},
		// A name that legitimately starts with 주 but is too short to be
		// an abbreviation stays as-is.
		{"주가", "주가"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	// Entity-marker variants of the same name are identical after
	// normalization.
	for _, pair := range [][2]string{
		{"(주)나산", "주식회사 나산"},
		{"(주)나산", "나산"},
		{"주식회사 나산", "나산"},
	} {
		if got := Similarity(pair[0], pair[1]); got != 1.0 {
			t.Errorf("Similarity(%q, %q): got %v, want 1.0", pair[0], pair[1], got)
		}
	}

	// Containment floors the score at 0.9 even when edit distance is large.
	if got := Similarity("삼성", "삼성전자 반도체사업부"); got < 0.9 {
		t.Errorf("containment score: got %v, want >= 0.9", got)
	}

	// Unrelated names score low.
	if got := Similarity("나산", "한국전력공사"); got >= DefaultThreshold {
		t.Errorf("unrelated names scored %v, want < %v", got, DefaultThreshold)
	}

	if got := Similarity("", "나산"); got != 0 {
		t.Errorf("empty name scored %v, want 0", got)
	}
}

// ---------------------------------------------------------------------------
// Roster mock
// ---------------------------------------------------------------------------

type mockRoster struct {
	mu      sync.Mutex
	clients []*models.Client
	// failNextInsert simulates losing a unique-index race: the insert
	// errors with 23505 after a competing row appeared.
	failNextInsert *models.Client
}

func (m *mockRoster) ListActive(_ context.Context, tenantID uuid.UUID) ([]*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Client
	for _, c := range m.clients {
		if c.TenantID == tenantID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRoster) GetByExactName(_ context.Context, tenantID uuid.UUID, name string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.TenantID == tenantID && c.Name == name && c.Active {
			return c, nil
		}
	}
	return nil, pgxNoRows{}
}

type pgxNoRows struct{}

func (pgxNoRows) Error() string { return "no rows in result set" }

func (m *mockRoster) Insert(_ context.Context, c *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNextInsert != nil {
		winner := m.failNextInsert
		m.failNextInsert = nil
		m.clients = append(m.clients, winner)
		return &pgconn.PgError{Code: "23505", ConstraintName: "ux_clients_tenant_name"}
	}
	for _, existing := range m.clients {
		if existing.TenantID == c.TenantID && existing.Name == c.Name && existing.Active {
			return &pgconn.PgError{Code: "23505", ConstraintName: "ux_clients_tenant_name"}
		}
	}
	c.ID = uuid.New()
	c.Active = true
	cp := *c
	m.clients = append(m.clients, &cp)
	return nil
}

func (m *mockRoster) add(tenantID uuid.UUID, name string) *models.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Client{ID: uuid.New(), TenantID: tenantID, Name: name, Active: true}
	m.clients = append(m.clients, c)
	return c
}

// ---------------------------------------------------------------------------
// FindBestMatch
// ---------------------------------------------------------------------------

func TestFindBestMatch(t *testing.T) {
	tenant := uuid.New()
	roster := &mockRoster{}
	nasan := roster.add(tenant, "주식회사 나산")
	roster.add(tenant, "한국전력공사")
	r := NewResolver(roster)
	ctx := context.Background()

	match, err := r.FindBestMatch(ctx, tenant, "(주)나산")
	if err != nil {
		t.Fatalf("FindBestMatch: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match for an entity-marker variant")
	}
	if match.ClientID != nasan.ID {
		t.Errorf("matched wrong client: %s", match.ClientName)
	}
	if match.Confidence != 1.0 {
		t.Errorf("confidence: got %v, want 1.0", match.Confidence)
	}

	// Below the threshold nothing is suggested.
	match, err = r.FindBestMatch(ctx, tenant, "전혀다른회사")
	if err != nil {
		t.Fatalf("FindBestMatch: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match, got %q at %v", match.ClientName, match.Confidence)
	}

	// Blank input is a non-answer, not an error.
	match, err = r.FindBestMatch(ctx, tenant, "   ")
	if err != nil || match != nil {
		t.Errorf("blank name: got match=%v err=%v, want nil/nil", match, err)
	}

	// Other tenants' rosters are invisible.
	match, err = r.FindBestMatch(ctx, uuid.New(), "나산")
	if err != nil {
		t.Fatalf("FindBestMatch: %v", err)
	}
	if match != nil {
		t.Error("match leaked across tenants")
	}
}

// ---------------------------------------------------------------------------
// FindOrCreate
// ---------------------------------------------------------------------------

func TestFindOrCreate(t *testing.T) {
	tenant := uuid.New()
	roster := &mockRoster{}
	r := NewResolver(roster)
	ctx := context.Background()

	created, err := r.FindOrCreate(ctx, tenant, "나산")
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	// An entity-marker variant resolves to the same row instead of
	// creating a duplicate.
	again, err := r.FindOrCreate(ctx, tenant, "(주)나산")
	if err != nil {
		t.Fatalf("FindOrCreate variant: %v", err)
	}
	if again.ID != created.ID {
		t.Error("normalized-equal name created a second client")
	}
	if len(roster.clients) != 1 {
		t.Errorf("roster size: got %d, want 1", len(roster.clients))
	}

	if _, err := r.FindOrCreate(ctx, tenant, "  "); err == nil {
		t.Error("empty name should be rejected")
	}
}

func TestFindOrCreateRecoversFromRace(t *testing.T) {
	tenant := uuid.New()
	roster := &mockRoster{}
	winner := &models.Client{ID: uuid.New(), TenantID: tenant, Name: "한빛", Active: true}
	roster.failNextInsert = winner
	r := NewResolver(roster)

	got, err := r.FindOrCreate(context.Background(), tenant, "한빛")
	if err != nil {
		t.Fatalf("FindOrCreate should absorb the unique violation: %v", err)
	}
	if got.ID != winner.ID {
		t.Error("expected the concurrent winner's row back")
	}
}

func TestFindOrCreateConcurrent(t *testing.T) {
	tenant := uuid.New()
	roster := &mockRoster{}
	r := NewResolver(roster)

	const n = 20
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.FindOrCreate(context.Background(), tenant, "삼성전자")
			if err != nil {
				t.Errorf("FindOrCreate: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	if len(roster.clients) != 1 {
		t.Fatalf("concurrent creates produced %d rows, want 1", len(roster.clients))
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatal("concurrent creates returned different clients")
		}
	}
}

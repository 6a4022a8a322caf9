// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkit-workers/internal/common/config"
	"medkit-workers/internal/common/database"
	httpx "medkit-workers/internal/common/http"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/logger"
	"medkit-workers/internal/knowledge"

	describemedicine "medkit-workers/internal/workers/medicine/describe-medicine"
	searchmedicines "medkit-workers/internal/workers/medicine/search-medicines"
)

// Logger adapters to bridge logger.Logger to worker-specific Logger interfaces
type describeMedicineLoggerAdapter struct {
	logger.Logger
}

func (a *describeMedicineLoggerAdapter) With(fields map[string]interface{}) describemedicine.Logger {
	return &describeMedicineLoggerAdapter{a.Logger.With(fields)}
}

type searchMedicinesLoggerAdapter struct {
	logger.Logger
}

func (a *searchMedicinesLoggerAdapter) With(fields map[string]interface{}) searchmedicines.Logger {
	return &searchMedicinesLoggerAdapter{a.Logger.With(fields)}
}

// upstreams fakes drugs.com, RxNav and the generative model in one process.
type upstreams struct {
	drugs, rxnav, genai *httptest.Server

	searchHits int32
	classHits  int32

	mu      sync.Mutex
	prompts []string
}

func newUpstreams(t *testing.T, summary string) *upstreams {
	t.Helper()
	u := &upstreams{}

	drugs := http.NewServeMux()
	drugs.HandleFunc("/paracetamol.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body>
			<div class="contentBox"><h1>Paracetamol</h1><p>Paracetamol is used to treat mild to moderate pain and to reduce fever.</p></div>
		</body></html>`)
	})
	drugs.HandleFunc("/search.php", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.searchHits, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	u.drugs = httptest.NewServer(drugs)

	rx := http.NewServeMux()
	rx.HandleFunc("/REST/rxcui.json", func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.URL.Query().Get("name"), "paracetamol") {
			_, _ = io.WriteString(w, `{"idGroup":{}}`)
			return
		}
		_, _ = io.WriteString(w, `{"idGroup":{"name":"Paracetamol","rxnormId":["161"]}}`)
	})
	rx.HandleFunc("/REST/rxclass/class/byRxcui.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.classHits, 1)
		_, _ = io.WriteString(w, `{"rxclassMinConceptList":{"rxclassMinConcept":[
			{"rxclassMinConceptItem":{"className":"Analgesic"}},
			{"rxclassMinConceptItem":{"className":"Antipyretic"}}
		]}}`)
	})
	u.rxnav = httptest.NewServer(rx)

	u.genai = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.prompts = append(u.prompts, string(body))
		u.mu.Unlock()
		if summary == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]interface{}{"text": summary}},
				},
			}},
		})
	}))

	t.Cleanup(func() {
		u.drugs.Close()
		u.rxnav.Close()
		u.genai.Close()
	})
	return u
}

func (u *upstreams) config() *config.Config {
	cfg := config.Defaults()
	cfg.APIs.DrugsCom.BaseURL = u.drugs.URL
	cfg.APIs.RxNav.BaseURL = u.rxnav.URL
	cfg.APIs.GenAI.BaseURL = u.genai.URL
	cfg.APIs.GenAI.APIKey = "e2e-key"
	cfg.Transport.MaxAttempts = 1
	cfg.Aggregation.Deadline = 5000
	return cfg
}

func (u *upstreams) lastPrompt() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.prompts) == 0 {
		return ""
	}
	return u.prompts[len(u.prompts)-1]
}

func newDescribeHandler(t *testing.T, cfg *config.Config, cache knowledge.IdentifierCache) *describemedicine.Handler {
	log := logger.NewTestLogger(t)
	transport := httpx.NewTransportFromConfig(cfg.Transport, httpx.WithLogger(log))
	genai := llm.NewClientFromConfig(cfg, transport, log)
	describer := knowledge.NewPipeline(cfg, transport, genai, cache, nil, log)
	return describemedicine.NewHandler(describemedicine.NewConfig(cfg), describer, &describeMedicineLoggerAdapter{log})
}

func TestDescribeMedicine_Paracetamol(t *testing.T) {
	const paragraph = "Paracetamol is an analgesic and antipyretic used for pain and fever."
	u := newUpstreams(t, paragraph)
	cfg := u.config()

	mr := miniredis.RunT(t)
	rdb := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	cache := knowledge.NewRedisIdentifierCache(rdb, time.Hour, logger.NewTestLogger(t))

	handler := newDescribeHandler(t, cfg, cache)

	out, err := handler.Execute(context.Background(), &describemedicine.Input{MedicineName: "Paracetamol"})
	require.NoError(t, err)

	assert.Equal(t, paragraph, out.Description)
	assert.Equal(t, "summary", out.Kind)
	assert.Equal(t, []string{"drugs.com", "rxnav"}, out.SourcesUsed)
	assert.Nil(t, out.Structured)

	// The deep link answered, so the search page was never needed.
	assert.Equal(t, int32(0), atomic.LoadInt32(&u.searchHits))

	prompt := u.lastPrompt()
	assert.Contains(t, prompt, "mild to moderate pain")
	assert.Contains(t, prompt, "Paracetamol belongs to: Analgesic, Antipyretic.")

	got, err := mr.Get("medkit:rxcui:paracetamol")
	require.NoError(t, err)
	assert.Equal(t, "161", got)
}

func TestDescribeMedicine_ModelDownFallsBackToSources(t *testing.T) {
	u := newUpstreams(t, "")
	handler := newDescribeHandler(t, u.config(), nil)

	out, err := handler.Execute(context.Background(), &describemedicine.Input{MedicineName: "Paracetamol"})
	require.NoError(t, err)

	assert.Equal(t, "raw", out.Kind)
	assert.Contains(t, out.Description, "mild to moderate pain")
	assert.Contains(t, out.Description, "belongs to: Analgesic, Antipyretic.")
	assert.Equal(t, []string{"drugs.com", "rxnav"}, out.SourcesUsed)
}

func TestDescribeMedicine_UnknownMedicine(t *testing.T) {
	u := newUpstreams(t, "unused")
	handler := newDescribeHandler(t, u.config(), nil)

	out, err := handler.Execute(context.Background(), &describemedicine.Input{MedicineName: "Zzzqx"})
	require.NoError(t, err)

	assert.Equal(t, "canned", out.Kind)
	assert.Equal(t, knowledge.CannedDescription("Zzzqx"), out.Description)
	assert.Empty(t, out.SourcesUsed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.searchHits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&u.classHits))
}

// TestSearchMedicines_Postgres runs against a real database when E2E_POSTGRES=1.
func TestSearchMedicines_Postgres(t *testing.T) {
	if os.Getenv("E2E_POSTGRES") == "" {
		t.Skip("set E2E_POSTGRES=1 with DB_HOST, DB_USER and DB_PASSWORD to run")
	}

	cfg := config.Defaults()
	cfg.Database.Postgres.Host = os.Getenv("DB_HOST")
	cfg.Database.Postgres.Database = "medkit"
	if cfg.Database.Postgres.Host == "" {
		cfg.Database.Postgres.Host = "localhost"
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	defer pg.Close()
	require.NoError(t, pg.Ping(context.Background()), "PostgreSQL ping failed")

	db := pg.DB
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS medicines (
		id SERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		expiry_date DATE,
		description TEXT
	)`)
	require.NoError(t, err)

	userID := "e2e-" + time.Now().Format("20060102150405.000000")
	_, err = db.Exec(`INSERT INTO medicines (user_id, name, quantity, expiry_date, description) VALUES
		($1, 'Paracetamol', 20, '2027-03-01', 'Pain and fever relief'),
		($1, 'Cetirizine', 10, NULL, 'Antihistamine for allergies'),
		($1, 'Calpol', 1, NULL, NULL)`, userID)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM medicines WHERE user_id = $1`, userID) })

	u := newUpstreams(t, `{"name_keywords": ["paracetamol"], "description_keywords": ["fever"]}`)
	cfg.APIs.GenAI.BaseURL = u.genai.URL
	cfg.APIs.GenAI.APIKey = "e2e-key"

	log := logger.NewTestLogger(t)
	genai := llm.NewClientFromConfig(cfg, httpx.NewTransportFromConfig(cfg.Transport), log)
	handler := searchmedicines.NewHandler(searchmedicines.NewConfig(cfg), pg, genai, &searchMedicinesLoggerAdapter{log})

	out, err := handler.Execute(context.Background(), &searchmedicines.Input{UserID: userID, Query: "something for a fever"})
	require.NoError(t, err)

	assert.False(t, out.UsedFallback)
	require.Len(t, out.Medicines, 1)
	assert.Equal(t, "Paracetamol", out.Medicines[0].Name)
	assert.Equal(t, "2027-03-01", out.Medicines[0].ExpiryDate)
}

package recovery

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sbportal/editlock/pkg/server/router"
	ginrouter "github.com/sbportal/editlock/pkg/server/router/gin"
	"github.com/sbportal/editlock/pkg/testutil"
)

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	log := &testutil.MockLogger{}
	r := ginrouter.NewRouter()
	r.Use(Recovery(log))
	r.GET("/boom", func(c router.Context) error {
		panic("handler exploded")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/boom")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}

	var logged bool
	for _, entry := range log.Entries() {
		if entry.Msg == "panic recovered" {
			logged = true
			if entry.Fields["panic"] != "handler exploded" {
				t.Errorf("panic field = %v", entry.Fields["panic"])
			}
			if entry.Fields["stack"] == "" {
				t.Error("no stack trace logged")
			}
		}
	}
	if !logged {
		t.Error("panic was not logged")
	}
}

func TestRecoveryPassesThroughNormalRequests(t *testing.T) {
	log := &testutil.MockLogger{}
	r := ginrouter.NewRouter()
	r.Use(Recovery(log))
	r.GET("/ok", func(c router.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ok")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if entries := log.Entries(); len(entries) != 0 {
		t.Errorf("unexpected log entries: %+v", entries)
	}
}

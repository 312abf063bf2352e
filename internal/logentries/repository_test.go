package logentries

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"opsdeck/internal/faults"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&LogEntry{}, &HostConfig{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(db)
}

func sampleEntry() *LogEntry {
	return &LogEntry{
		Name: "app",
		Path: "/var/log/app.log",
		Hosts: []HostConfig{
			{Host: "10.0.0.1", Port: 22, Username: "ops", Password: "x"},
			{Host: "10.0.0.2", Port: 2222, Username: "ops", Password: "y", Path: "/srv/logs/app.log"},
		},
	}
}

func TestCreateAndGetByName(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Create(sampleEntry()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.GetByName("app")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if got.Path != "/var/log/app.log" || len(got.Hosts) != 2 {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.Hosts[0].Position != 0 || got.Hosts[1].Position != 1 {
		t.Errorf("host positions must follow creation order: %+v", got.Hosts)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Create(sampleEntry()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := repo.Create(sampleEntry())
	if faults.KindOf(err) != faults.Validation {
		t.Errorf("duplicate name must fail validation, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Create(&LogEntry{Name: " "})
	if faults.KindOf(err) != faults.Validation {
		t.Errorf("blank name must fail validation, got %v", err)
	}

	err = repo.Create(&LogEntry{
		Name:  "bad",
		Path:  "/var/log/x.log",
		Hosts: []HostConfig{{Host: "10.0.0.1", Port: 22}},
	})
	if faults.KindOf(err) != faults.Validation {
		t.Errorf("host without username must fail validation, got %v", err)
	}
}

func TestGetByNameNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetByName("missing")
	if faults.KindOf(err) != faults.NotFound {
		t.Errorf("expected not-found fault, got %v", err)
	}
}

func TestSaveReplacesHosts(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Create(sampleEntry()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated := sampleEntry()
	updated.Hosts = []HostConfig{
		{Host: "10.0.0.9", Port: 22, Username: "deploy", Password: "z"},
	}
	if err := repo.Save(updated); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetByName("app")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Hosts) != 1 || got.Hosts[0].Host != "10.0.0.9" {
		t.Errorf("save must replace the host list, got %+v", got.Hosts)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Create(sampleEntry()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Delete("app"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.GetByName("app"); faults.KindOf(err) != faults.NotFound {
		t.Errorf("deleted entry must be gone, got %v", err)
	}
	if err := repo.Delete("app"); faults.KindOf(err) != faults.NotFound {
		t.Errorf("double delete must be not-found, got %v", err)
	}
}

func TestLookupResolvesEndpointAndPath(t *testing.T) {
	repo := newTestRepository(t)

	if err := repo.Create(sampleEntry()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	endpoint, path, err := repo.Lookup("app", 1)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if endpoint.Host != "10.0.0.2" || endpoint.Port != 2222 {
		t.Errorf("unexpected endpoint: %+v", endpoint)
	}
	if path != "/srv/logs/app.log" {
		t.Errorf("per-host path must win, got %q", path)
	}

	// Host 0 has no override, the entry default applies.
	_, path, err = repo.Lookup("app", 0)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if path != "/var/log/app.log" {
		t.Errorf("expected entry default path, got %q", path)
	}

	if _, _, err := repo.Lookup("app", 5); faults.KindOf(err) != faults.NotFound {
		t.Errorf("out-of-range host index must be not-found, got %v", err)
	}
}

func TestSearchEntryConversion(t *testing.T) {
	entry := sampleEntry()
	entry.Hosts[0].Position = 0
	entry.Hosts[1].Position = 1

	search := entry.SearchEntry()
	if search.Name != "app" || len(search.Hosts) != 2 {
		t.Fatalf("unexpected conversion: %+v", search)
	}
	if search.Hosts[1].Path != "/srv/logs/app.log" {
		t.Errorf("per-host path must carry over, got %q", search.Hosts[1].Path)
	}
	if search.Hosts[0].Endpoint.Key() != "10.0.0.1:22:ops" {
		t.Errorf("unexpected endpoint key: %s", search.Hosts[0].Endpoint.Key())
	}
}

func TestParseTarget(t *testing.T) {
	endpoint, err := ParseTarget("ops@10.0.0.1:2222")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if endpoint.Username != "ops" || endpoint.Host != "10.0.0.1" || endpoint.Port != 2222 {
		t.Errorf("unexpected endpoint: %+v", endpoint)
	}

	endpoint, err = ParseTarget("ops@example.com")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if endpoint.Port != 22 {
		t.Errorf("port must default to 22, got %d", endpoint.Port)
	}

	for _, bad := range []string{"", "nohost@", "@nohost", "ops@host:", "ops@host:99999", "justahost"} {
		if _, err := ParseTarget(bad); faults.KindOf(err) != faults.Validation {
			t.Errorf("%q must fail validation, got %v", bad, err)
		}
	}

	if got := TargetString(endpoint); got != "ops@example.com:22" {
		t.Errorf("unexpected target string: %q", got)
	}
}

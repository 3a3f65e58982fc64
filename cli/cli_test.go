package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"deal_watcher/models"
	"deal_watcher/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.db")
	s, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, d := range []models.Deal{
		{DealID: 1, Project: "Sunrise", House: 7, ObjectType: models.ObjectApartment, Object: 12,
			CreatedOn: time.Date(2025, 3, 12, 4, 38, 0, 0, time.UTC)},
		{DealID: 2, Project: "Sunrise", House: 4, ObjectType: models.ObjectStorageRoom, Object: 3},
	} {
		d := d
		require.NoError(t, s.InsertDeal(ctx, &d))
	}
	return path
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "sync", "list", "trigger", "dashboard"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	db := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, db)
	assert.Equal(t, "", db.DefValue)
}

func TestListDeals(t *testing.T) {
	path := seedDB(t)

	out, err := execute(t, "list", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "Дом № 7 - Квартира №12\n\nВсего записей: 1\n", out)

	out, err = execute(t, "list", "--db", path, "--type", "storage-room", "--project", "Sunrise")
	require.NoError(t, err)
	assert.Equal(t, "Проект: Sunrise\nДома: 4\n", out)

	out, err = execute(t, "list", "--db", path, "--project", "Sunrise", "--house", "7", "--object", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "Срок передачи: 11.04.2025")

	out, err = execute(t, "list", "--db", path, "--project", "Sunrise", "--house", "1")
	require.NoError(t, err)
	assert.Equal(t, "Нет данных\n", out)
}

func TestListRejectsUnknownType(t *testing.T) {
	_, err := execute(t, "list", "--db", seedDB(t), "--type", "garage")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestTriggerQueuesCommand(t *testing.T) {
	path := seedDB(t)

	out, err := execute(t, "trigger", "--db", path, "sync_now")
	require.NoError(t, err)
	assert.Equal(t, "Queued sync_now (id 1)\n", out)

	s, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	cmds, err := s.GetPendingCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, models.CmdSyncNow, cmds[0].Command)

	_, err = execute(t, "trigger", "--db", path, "reboot")
	assert.Error(t, err)
}

func clearOptionalEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"AMQP_URL", "SMTP_HOST", "S3_BUCKET", "PROXY_URL", "PROJECT_NAME", "SMTP_FROM", "OPERATOR_EMAIL"} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("CRITERION_FILE", filepath.Join(t.TempDir(), "none.yaml"))
}

func TestSyncRequiresConfig(t *testing.T) {
	clearOptionalEnv(t)
	t.Setenv("AMO_URL", "")
	t.Setenv("AMO_TOKEN", "")

	_, err := execute(t, "sync", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestSyncNothingNew(t *testing.T) {
	clearOptionalEnv(t)

	crmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer crmSrv.Close()
	pbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected Profitbase call %s", r.URL.Path)
	}))
	defer pbSrv.Close()

	t.Setenv("AMO_URL", crmSrv.URL)
	t.Setenv("AMO_TOKEN", "token")
	t.Setenv("PROF_URL", pbSrv.URL)
	t.Setenv("PROF_API_KEY", "key")

	path := filepath.Join(t.TempDir(), "sync.db")
	out, err := execute(t, "sync", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "Новых сделок не найдено\n", out)

	s, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	entry, err := s.LastSyncLog(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 0, entry.RowCount)
}

func TestMaskConnectionString(t *testing.T) {
	assert.Equal(t, "postgres://deal:****@db:5432/deals", maskConnectionString("postgres://deal:secret@db:5432/deals"))
	assert.Equal(t, "deal_watcher.db", maskConnectionString("deal_watcher.db"))
	assert.Equal(t, "http://proxy:3128", maskConnectionString("http://proxy:3128"))
}

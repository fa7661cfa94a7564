package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "github.com/jmanoj0905/natural-language-sql/internal/db"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

func setupAuditRepo(t *testing.T) *AuditRepo {
	t.Helper()
	writeDB, readDB := internaldb.OpenTestStore(t)
	return NewAuditRepo(writeDB, readDB)
}

func makeRecord(op, table, db string) *domain.AuditRecord {
	return &domain.AuditRecord{
		OperationType:    op,
		TableName:        table,
		RecordIdentifier: "username='alice_brown'",
		PreImage:         `[{"id":4,"username":"alice_brown"}]`,
		Performer:        "alice",
		Reason:           "natural-language request",
		DatabaseID:       db,
		SQL:              "DELETE FROM users WHERE username = 'alice_brown'",
		RowsAffected:     1,
	}
}

func TestAuditRepo_AppendAndList(t *testing.T) {
	t.Parallel()
	repo := setupAuditRepo(t)
	ctx := context.Background()

	rec := makeRecord("DELETE", "users", "shop")
	require.NoError(t, repo.Append(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())

	got, total, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "DELETE", got[0].OperationType)
	assert.Equal(t, rec.PreImage, got[0].PreImage)
	assert.Equal(t, int64(1), got[0].RowsAffected)
	assert.True(t, rec.Timestamp.Equal(got[0].Timestamp))
}

func TestAuditRepo_Filters(t *testing.T) {
	t.Parallel()
	repo := setupAuditRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, makeRecord("DELETE", "users", "shop")))
	require.NoError(t, repo.Append(ctx, makeRecord("UPDATE", "users", "shop")))
	require.NoError(t, repo.Append(ctx, makeRecord("DELETE", "orders", "crm")))

	tests := []struct {
		name   string
		filter domain.AuditFilter
		want   int64
	}{
		{"none", domain.AuditFilter{}, 3},
		{"operation", domain.AuditFilter{OperationType: "DELETE"}, 2},
		{"table", domain.AuditFilter{TableName: "users"}, 2},
		{"database", domain.AuditFilter{DatabaseID: "crm"}, 1},
		{"combined", domain.AuditFilter{OperationType: "DELETE", TableName: "users"}, 1},
		{"no match", domain.AuditFilter{TableName: "missing"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, got, int(tt.want))
		})
	}
}

func TestAuditRepo_PagesNewestFirst(t *testing.T) {
	t.Parallel()
	repo := setupAuditRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		rec := makeRecord("INSERT", fmt.Sprintf("t%d", i), "shop")
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Append(ctx, rec))
	}

	page, total, err := repo.List(ctx, domain.AuditFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "t3", page[0].TableName)
	assert.Equal(t, "t2", page[1].TableName)
}

func TestAuditRepo_RejectsMissingOperation(t *testing.T) {
	t.Parallel()
	repo := setupAuditRepo(t)

	err := repo.Append(context.Background(), &domain.AuditRecord{TableName: "users"})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

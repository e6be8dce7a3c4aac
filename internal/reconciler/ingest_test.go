package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-ledger/internal/classifier"
	"household-ledger/internal/matcher"
	"household-ledger/internal/models"
	"household-ledger/internal/parsers"
	"household-ledger/internal/store"
	"household-ledger/pkg/errors"
)

const cardStatement = "date,description,billing amount\n" +
	"05/03/2026,BIT PAYMENT,150.00\n" +
	"07/03/2026,SUPER-PHARM 042,89.90\n"

func listAll(t *testing.T, st *store.MemoryStore) []*models.StoredTransaction {
	t.Helper()
	rows, err := st.ListTransactions(context.Background(), store.TransactionFilter{HouseholdID: household})
	require.NoError(t, err)
	return rows
}

func TestIngest_StoresParsedRows(t *testing.T) {
	service, st := newTestService(t, nil)

	result, err := service.Ingest(context.Background(), &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Parsed)
	assert.Equal(t, 2, result.Inserted)
	assert.Zero(t, result.FailedFiles)

	rows := listAll(t, st)
	require.Len(t, rows, 2)
	for _, tx := range rows {
		assert.Equal(t, household, tx.HouseholdID)
		assert.Equal(t, "csv", tx.Source)
		assert.Equal(t, models.StatusPending, tx.Status)
		assert.Equal(t, models.ReconciliationNone, tx.ReconciliationStatus)
		assert.NotEmpty(t, tx.ID)
	}
}

func TestIngest_SkipsDuplicates(t *testing.T) {
	service, st := newTestService(t, nil)
	ctx := context.Background()
	request := &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
	}

	_, err := service.Ingest(ctx, request)
	require.NoError(t, err)

	again, err := service.Ingest(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, 2, again.DuplicatesSkipped)
	assert.Zero(t, again.Inserted)
	require.Len(t, again.Files[0].Duplicates, 2)
	assert.Equal(t, 100, again.Files[0].Duplicates[0].Confidence)
	assert.Len(t, listAll(t, st), 2)
}

func TestIngest_KeepDuplicates(t *testing.T) {
	service, st := newTestService(t, nil)
	ctx := context.Background()

	first, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
	})
	require.NoError(t, err)
	originals := map[string]string{}
	for _, tx := range first.Files[0].Stored {
		originals[tx.MerchantRaw] = tx.ID
	}

	kept, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID:    household,
		Inputs:         []parsers.Input{csvInput("card-again.csv", cardStatement)},
		KeepDuplicates: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, kept.DuplicatesKept)
	assert.Equal(t, 2, kept.Inserted)

	for _, tx := range kept.Files[0].Stored {
		assert.True(t, tx.IsDuplicate)
		assert.Equal(t, originals[tx.MerchantRaw], tx.DuplicateOf)
	}
	assert.Len(t, listAll(t, st), 4)
}

func TestIngest_DryRun(t *testing.T) {
	service, st := newTestService(t, nil)

	result, err := service.Ingest(context.Background(), &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
		DryRun:      true,
	})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Zero(t, result.Inserted)
	assert.Len(t, result.Files[0].Stored, 2)
	assert.Empty(t, listAll(t, st))
}

func TestIngest_MerchantMemoryPrefill(t *testing.T) {
	service, st := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, st.UpsertMerchantCategory(ctx, household, "SUPER-PHARM", "Health"))

	result, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
	})
	require.NoError(t, err)

	byMerchant := map[string]*models.StoredTransaction{}
	for _, tx := range result.Files[0].Stored {
		byMerchant[tx.MerchantRaw] = tx
	}
	pharm := byMerchant["SUPER-PHARM 042"]
	require.NotNil(t, pharm)
	assert.Equal(t, "Health", pharm.Category)
	assert.Equal(t, models.StatusCategorized, pharm.Status)

	bit := byMerchant["BIT PAYMENT"]
	require.NotNil(t, bit)
	assert.Empty(t, bit.Category)
	assert.Equal(t, models.StatusPending, bit.Status)
}

func TestIngest_FailedFileDoesNotStopOthers(t *testing.T) {
	service, st := newTestService(t, nil)

	result, err := service.Ingest(context.Background(), &IngestRequest{
		HouseholdID: household,
		Inputs: []parsers.Input{
			{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")},
			csvInput("card.csv", cardStatement),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedFiles)
	assert.Equal(t, 2, result.Inserted)

	require.Len(t, result.FileErrors(), 1)
	assert.True(t, errors.Is(result.FileErrors()[0], errors.ErrUnsupportedType))
	assert.True(t, errors.Is(result.Err(), errors.ErrUnsupportedType))
	assert.Equal(t, "notes.txt", result.Files[0].Name, "results keep input order")
	assert.Len(t, listAll(t, st), 2)
}

var bitScreenshot = fakeClassifier{records: []classifier.Record{{
	"date":             "2026-03-05",
	"merchant":         "Bit",
	"amount":           150.0,
	"p2p_direction":    "sent",
	"p2p_counterparty": "Dana",
	"p2p_memo":         "pizza",
}}}

func screenshotInput() parsers.Input {
	return parsers.Input{Name: "bit.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
}

// TestIngest_ScreenshotThenReconcile walks the whole flow: a card statement,
// a wallet screenshot of the same payment, the review queue and the merge.
func TestIngest_ScreenshotThenReconcile(t *testing.T) {
	service, st := newTestService(t, bitScreenshot)
	ctx := context.Background()

	_, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
	})
	require.NoError(t, err)

	// the card row of the same payment is not a duplicate of the screenshot
	shot, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{screenshotInput()},
	})
	require.NoError(t, err)
	assert.Empty(t, shot.Files[0].Duplicates)
	require.Len(t, shot.Files[0].Stored, 1)
	app := shot.Files[0].Stored[0]
	assert.Equal(t, models.SourceTagP2PScreenshot, app.Source)
	assert.False(t, app.IsDuplicate)

	queue, err := service.FindMatches(ctx, household, DateRange{})
	require.NoError(t, err)
	require.Len(t, queue.Matches, 1)
	match := queue.Matches[0]
	assert.Equal(t, matcher.MatchExact, match.MatchType)
	require.Len(t, match.Candidates, 1)
	assert.Equal(t, app.ID, match.Candidates[0].ID)

	_, err = service.MergeP2PMatch(ctx, household, match.Primary.ID, app.ID)
	require.NoError(t, err)

	card := get(t, st, match.Primary.ID)
	assert.Equal(t, "Dana", card.MerchantNormalized)
	assert.Equal(t, "pizza", card.Notes)

	after, err := service.FindMatches(ctx, household, DateRange{})
	require.NoError(t, err)
	assert.Empty(t, after.Matches)
}

func TestIngest_ScreenshotBeforeCardStatement(t *testing.T) {
	service, st := newTestService(t, bitScreenshot)
	ctx := context.Background()

	_, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{screenshotInput()},
	})
	require.NoError(t, err)

	card, err := service.Ingest(ctx, &IngestRequest{
		HouseholdID: household,
		Inputs:      []parsers.Input{csvInput("card.csv", cardStatement)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, card.Inserted)
	assert.Zero(t, card.DuplicatesSkipped)
	assert.Len(t, listAll(t, st), 3)

	queue, err := service.FindMatches(ctx, household, DateRange{})
	require.NoError(t, err)
	require.Len(t, queue.Matches, 1)
	assert.Equal(t, "BIT PAYMENT", queue.Matches[0].Primary.MerchantRaw)
	assert.Equal(t, matcher.MatchExact, queue.Matches[0].MatchType)
	assert.Empty(t, queue.BalancePaid)
}

func TestIngest_SameScreenshotTwice(t *testing.T) {
	service, st := newTestService(t, bitScreenshot)
	ctx := context.Background()
	request := &IngestRequest{HouseholdID: household, Inputs: []parsers.Input{screenshotInput()}}

	_, err := service.Ingest(ctx, request)
	require.NoError(t, err)
	again, err := service.Ingest(ctx, request)
	require.NoError(t, err)

	assert.Equal(t, 1, again.DuplicatesSkipped)
	assert.Len(t, listAll(t, st), 1)
}

func TestSameSourceKind(t *testing.T) {
	rows := []*models.StoredTransaction{
		{ID: "card", Source: "csv"},
		{ID: "app", Source: models.SourceTagP2PScreenshot},
		{ID: "shot", Source: models.SourceTagScreenshot},
	}

	ids := func(txs []*models.StoredTransaction) []string {
		var out []string
		for _, tx := range txs {
			out = append(out, tx.ID)
		}
		return out
	}
	assert.Equal(t, []string{"app", "shot"}, ids(sameSourceKind(rows, true)))
	assert.Equal(t, []string{"card"}, ids(sameSourceKind(rows, false)))
	assert.Len(t, rows, 3, "the input is not modified")
}

func TestSourceTag(t *testing.T) {
	plain := &models.ParsedTransaction{}
	p2p := &models.ParsedTransaction{P2PDirection: models.P2PReceived}

	assert.Equal(t, "csv", sourceTag(models.SourceCSV, plain))
	assert.Equal(t, "pdf", sourceTag(models.SourcePDF, p2p))
	assert.Equal(t, models.SourceTagScreenshot, sourceTag(models.SourceImage, plain))
	assert.Equal(t, models.SourceTagP2PScreenshot, sourceTag(models.SourceImage, p2p))
}

package record

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukerupert/pawlog/internal/common"
)

func TestPagerWalksNewestFirst(t *testing.T) {
	docs := setupDocs(t)
	n := 0
	s := NewWeightStore(docs, nil, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("w%02d", n)
	}))
	ctx := context.Background()

	// Five measurements, two of them at the same instant.
	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range dates {
		if _, err := s.Add(ctx, "rex", WeightInput{Value: 4, Date: d}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	p := NewWeightPager(docs, 2)
	var got []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pager did not terminate")
		}
		page, err := p.Page(ctx, "rex", cursor)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		for _, w := range page.Items {
			got = append(got, w.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	want := "[w05 w03 w02 w01 w04]"
	if fmt.Sprint(got) != want {
		t.Errorf("order = %v, want %s", got, want)
	}
}

func TestPagerExactPageHasNoNextCursor(t *testing.T) {
	docs := setupDocs(t)
	s := NewEntryStore(docs, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		s.Add(ctx, "rex", EntryInput{Type: "diary", Date: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)})
	}

	page, err := NewEntryPager(docs, 2).Page(ctx, "rex", "")
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor != "" {
		t.Errorf("items = %d next = %q, want 2 and no cursor", len(page.Items), page.NextCursor)
	}
}

func TestPagerEmptyAndInvalid(t *testing.T) {
	docs := setupDocs(t)
	p := NewEntryPager(docs, 0)
	if p.size != DefaultPageSize {
		t.Errorf("size = %d, want default %d", p.size, DefaultPageSize)
	}

	page, err := p.Page(context.Background(), "rex", "")
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 0 || page.NextCursor != "" {
		t.Errorf("page = %+v, want empty", page)
	}

	if _, err := p.Page(context.Background(), "rex", "%%%"); !errors.Is(err, common.ErrValidation) {
		t.Errorf("bad cursor err = %v, want ErrValidation", err)
	}
	if _, err := p.Page(context.Background(), "", ""); !errors.Is(err, common.ErrValidation) {
		t.Errorf("missing owner err = %v, want ErrValidation", err)
	}
}

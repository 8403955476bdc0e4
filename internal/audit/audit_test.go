package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, entry *model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func TestMasker_MaskInput(t *testing.T) {
	m := NewMasker([]string{"enter_pin", " verify_pin "}, 5)

	tests := []struct {
		name  string
		menu  string
		input string
		want  string
	}{
		{"pin menu always masked", "enter_pin", "9999", Mask},
		{"pin menu masks anything", "verify_pin", "hello", Mask},
		{"empty stays empty", "enter_pin", "", ""},
		{"plain input untouched", "main", "1234", "1234"},
		{"early composite token kept", "main", "1*1234*2", "1*1234*2"},
		{"late composite token masked", "main", "1*2*3*4*5*1234", "1*2*3*4*5*****"},
		{"late non pin token kept", "main", "1*2*3*4*5*12345", "1*2*3*4*5*12345"},
		{"unattributed pin like token masked", "", "1*123456", "1*****"},
		{"unattributed short tokens kept", "", "1*99", "1*99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MaskInput(tt.menu, tt.input))
		})
	}
}

func TestMaskResponse(t *testing.T) {
	assert.Equal(t, "CON Your PIN **** was set. Ref 12345", MaskResponse("CON Your PIN 4321 was set. Ref 12345"))

	long := strings.Repeat("a", 600)
	assert.Len(t, MaskResponse(long), 500)
}

func TestTrail_Write(t *testing.T) {
	store := new(mockStore)
	trail := NewTrail(store, NewMasker([]string{"enter_pin"}, 5))

	store.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditEntry) bool {
		return e.Kind == model.AuditKindInteraction &&
			e.UserInput == Mask &&
			e.ResponseText == "END Paid. Code ****" &&
			e.MenuCode != nil && *e.MenuCode == "enter_pin" &&
			e.AppID == nil &&
			e.ProcessingTimeMs == 42 &&
			e.ID != ""
	})).Return(nil).Once()

	trail.Write(context.Background(), Record{
		SessionID:   "s1",
		PhoneNumber: "+254700000001",
		MenuCode:    "enter_pin",
		Input:       "1*2*4321",
		Response:    "END Paid. Code 8812",
		Duration:    42 * time.Millisecond,
	})

	store.AssertExpectations(t)
}

func TestTrail_WriteSwallowsStoreErrors(t *testing.T) {
	store := new(mockStore)
	trail := NewTrail(store, NewMasker(nil, 5))
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	assert.NotPanics(t, func() {
		trail.Write(context.Background(), Record{Kind: model.AuditKindError, SessionID: "s1"})
	})
}

func TestReplay(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	menu := func(s string) *string { return &s }

	entries := []model.AuditEntry{
		{Kind: model.AuditKindInteraction, MenuCode: menu("balance"), UserInput: "1", ResponseText: "CON Balance", CreatedAt: base.Add(time.Second)},
		{Kind: model.AuditKindInteraction, MenuCode: menu("main"), UserInput: "", ResponseText: "CON Welcome", CreatedAt: base},
		{Kind: model.AuditKindInteraction, MenuCode: menu("enter_pin"), UserInput: "****", ResponseText: strings.Repeat("x", 150), CreatedAt: base.Add(2 * time.Second)},
		{Kind: model.AuditKindTimeout, UserInput: "", CreatedAt: base.Add(3 * time.Second)},
	}

	r := Replay("s1", entries)
	require.Len(t, r.Steps, 4)
	assert.Equal(t, "main", r.Steps[0].Menu)
	assert.Equal(t, 1, r.Steps[0].Step)
	assert.Equal(t, "balance", r.Steps[1].Menu)
	assert.Len(t, []rune(r.Steps[2].Response), 103)
	assert.Equal(t, "main → balance [1] → enter_pin [****] → (timeout)", r.Flow)
}

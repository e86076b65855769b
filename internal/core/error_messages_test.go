package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/table"
)

func TestMapError_Codes(t *testing.T) {
	cases := map[string]struct {
		err  error
		code string
	}{
		"missing column":        {fmt.Errorf("filter: %w", apperr.ColumnNotFound("country")), "COL001"},
		"text value column":     {fmt.Errorf("chart: %w", apperr.InvalidColumnKind("region", "value column must be numeric")), "COL002"},
		"negative pie slice":    {apperr.InvalidChartInput("pie slices cannot be negative"), "CHART001"},
		"assistant off":         {qa.ErrDisabled, "EXT002"},
		"assistant 502":         {apperr.External("qa", "ask", errors.New("http 502: upstream down")), "EXT001"},
		"assistant deadline":    {apperr.External("qa", "ask", fmt.Errorf("no answer: %w", context.DeadlineExceeded)), "REQ002"},
		"client went away":      {fmt.Errorf("ask: %w", context.Canceled), "REQ001"},
		"all slots taken":       {ErrBusy, "BUSY001"},
		"upload over limit":     {fmt.Errorf("%w: limit is 10 bytes", storage.ErrTooLarge), "FILE001"},
		"body over limit":       {errors.New("http: request body too large"), "FILE001"},
		"pdf upload":            {fmt.Errorf("save: %w", storage.ErrUnsupportedType), "FILE002"},
		"broken csv":            {errors.New("load a.csv: invalid csv: record on line 2: wrong number of fields"), "FILE003"},
		"broken workbook":       {errors.New("load a.xlsx: invalid excel workbook: zip: not a valid zip file"), "FILE003"},
		"no file part":          {errors.New("no file provided"), "FILE004"},
		"header only":           {fmt.Errorf("load x.csv: %w", table.ErrEmptyFile), "FILE005"},
		"deleted meanwhile":     {fmt.Errorf("%w: x.csv", storage.ErrNotFound), "FILE006"},
		"path traversal name":   {storage.ErrInvalidName, "FILE007"},
		"unknown sheet":         {table.ErrSheetNotFound, "FILE008"},
		"binary xls":            {fmt.Errorf("load a.xls: %w", table.ErrLegacyWorkbook), "FILE009"},
		"wrong password":        {ErrBadCredentials, "AUTH001"},
		"no session":            {ErrUnauthorized, "AUTH002"},
		"throttled, any case":   {errors.New("RATE LIMIT hit"), "RATE001"},
		"anything else":         {errors.New("some random internal error"), "ERR000"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := MapError(tc.err)
			assert.Equal(t, tc.code, got.Code)
			assert.NotEmpty(t, got.Message)
			assert.NotEmpty(t, got.Action)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Equal(t, UserMessage{}, MapError(nil))
	assert.Empty(t, FormatUserError(nil))
	assert.False(t, IsUserFacing(nil))
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t,
		"A selected column is not in this file (Code: COL001). Pick a column from the list; the file may have changed",
		FormatUserError(apperr.ColumnNotFound("country")))
}

func TestIsUserFacing(t *testing.T) {
	assert.True(t, IsUserFacing(apperr.ErrInvalidChartInput))
	assert.False(t, IsUserFacing(errors.New("index out of range")))
}

func TestUserError(t *testing.T) {
	require.Nil(t, NewUserError(nil))

	cause := fmt.Errorf("%w: x.csv", storage.ErrNotFound)
	ue := NewUserError(cause)
	assert.Equal(t, "File not found", ue.Error())
	assert.ErrorIs(t, ue, storage.ErrNotFound)

	custom := &UserError{Technical: errors.New("bad chart param"), User: UserMessage{Message: "custom", Code: "REQ003"}}
	assert.Equal(t, "REQ003", MapError(fmt.Errorf("wrapped: %w", custom)).Code)
}

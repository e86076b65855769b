package table

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/insights/internal/apperr"
)

func TestNew_RejectsUnequalColumns(t *testing.T) {
	_, err := New(
		&Column{Name: "a", Kind: KindText, Values: []Value{Text("x"), Text("y")}},
		&Column{Name: "b", Kind: KindNumber, Values: []Value{Number(1)}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "b" has 1 values, want 2`)
}

func TestNew_RejectsDuplicateNames(t *testing.T) {
	_, err := New(
		&Column{Name: "a", Kind: KindText},
		&Column{Name: "a", Kind: KindText},
	)
	require.Error(t, err)
}

func TestLookup_ColumnNotFound(t *testing.T) {
	tbl := MustNew(&Column{Name: "region", Kind: KindText, Values: []Value{Text("East")}})

	_, err := tbl.Lookup("sales")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrColumnNotFound))
}

func TestTake_DoesNotAliasInput(t *testing.T) {
	tbl := MustNew(&Column{Name: "n", Kind: KindNumber, Values: []Value{Number(1), Number(2), Number(3)}})

	sub := tbl.Take([]int{2, 0})
	require.Equal(t, 2, sub.NumRows())

	col, _ := sub.Column("n")
	col.Values[0] = Number(99)

	orig, _ := tbl.Column("n")
	assert.Equal(t, 3.0, orig.Values[2].Num)
	assert.Equal(t, []string{"1"}, tbl.Head(1).Strings(0))
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Number(10), "10"},
		{Number(10.5), "10.5"},
		{Number(-0.0), "0"},
		{Number(1e6), "1000000"},
		{Text("East"), "East"},
		{Missing(), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.String())
	}
}

func TestReadCSV_InfersKinds(t *testing.T) {
	in := "region,sales,note\nEast,10,a\nWest,5,\nEast,3,NA\n"

	tbl, err := ReadCSV(strings.NewReader(in), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "sales", "note"}, tbl.Names())
	assert.Equal(t, 3, tbl.NumRows())

	region, _ := tbl.Column("region")
	sales, _ := tbl.Column("sales")
	note, _ := tbl.Column("note")

	assert.Equal(t, KindText, region.Kind)
	assert.Equal(t, KindNumber, sales.Kind)
	assert.Equal(t, []float64{10, 5, 3}, sales.Numbers())
	assert.Equal(t, KindText, note.Kind)
	assert.Equal(t, 2, note.MissingCount())
}

func TestReadCSV_AllMissingColumnIsNumeric(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a,b\n1,\n2,\n"), LoadOptions{})
	require.NoError(t, err)

	b, _ := tbl.Column("b")
	assert.Equal(t, KindNumber, b.Kind)
	assert.Equal(t, 2, b.MissingCount())
}

func TestReadCSV_BOMAndRaggedRows(t *testing.T) {
	in := "\xEF\xBB\xBFname,,name\nx,1,y,extra\nz\n"

	tbl, err := ReadCSV(strings.NewReader(in), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "Column_2", "name.1"}, tbl.Names())
	assert.Equal(t, []string{"x", "1", "y"}, tbl.Strings(0))
	assert.Equal(t, []string{"z", "", ""}, tbl.Strings(1))
}

func TestReadCSV_InvalidUTF8(t *testing.T) {
	in := "city\nS\xE3o Paulo\n"

	tbl, err := ReadCSV(iotest.OneByteReader(strings.NewReader(in)), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "S?o Paulo", tbl.Strings(0)[0])
}

func TestReadCSV_SplitMultibyteRune(t *testing.T) {
	in := "city\nSão Paulo\n"

	tbl, err := ReadCSV(iotest.OneByteReader(strings.NewReader(in)), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", tbl.Strings(0)[0])
}

func TestReadCSV_LenientNumbers(t *testing.T) {
	in := "amount\n\"$1,200.50\"\n(300)\n"

	strict, err := ReadCSV(strings.NewReader(in), LoadOptions{})
	require.NoError(t, err)
	col, _ := strict.Column("amount")
	assert.Equal(t, KindText, col.Kind)

	lenient, err := ReadCSV(strings.NewReader(in), LoadOptions{LenientNumbers: true})
	require.NoError(t, err)
	col, _ = lenient.Column("amount")
	assert.Equal(t, KindNumber, col.Kind)
	assert.Equal(t, []float64{1200.5, -300}, col.Numbers())
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), LoadOptions{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestRead_UnsupportedFormat(t *testing.T) {
	_, err := Read(strings.NewReader("x"), "notes.txt", LoadOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCleanCell(t *testing.T) {
	assert.Equal(t, "00123", CleanCell(` ="00123" `))
	assert.Equal(t, "=SUM(A1)", CleanCell("=SUM(A1)"))
	assert.Equal(t, "plain", CleanCell("plain"))
}

func workbook(t *testing.T) io.Reader {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"region", "sales"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"East", 10}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"West", 5}))

	_, err := f.NewSheet("Targets")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Targets", "A1", &[]any{"region", "target"}))
	require.NoError(t, f.SetSheetRow("Targets", "A2", &[]any{"East", 20}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestReadExcel(t *testing.T) {
	tbl, err := Read(workbook(t), "report.xlsx", LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "sales"}, tbl.Names())
	sales, _ := tbl.Column("sales")
	assert.Equal(t, KindNumber, sales.Kind)
	assert.Equal(t, []float64{10, 5}, sales.Numbers())
}

func TestReadExcel_FormattedNumbers(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"region", "sales"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"East", 1234.5}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"West", 0.25}))

	thousands, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	require.NoError(t, err)
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 9})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "B2", "B2", thousands))
	require.NoError(t, f.SetCellStyle("Sheet1", "B3", "B3", percent))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	tbl, err := ReadExcel(bytes.NewReader(buf.Bytes()), LoadOptions{})
	require.NoError(t, err)
	sales, _ := tbl.Column("sales")
	assert.Equal(t, KindNumber, sales.Kind)
	assert.Equal(t, []float64{1234.5, 0.25}, sales.Numbers())

	region, _ := tbl.Column("region")
	assert.Equal(t, KindText, region.Kind)
}

func TestReadExcel_SelectSheet(t *testing.T) {
	tbl, err := ReadExcel(workbook(t), LoadOptions{Sheet: "Targets"})
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "target"}, tbl.Names())

	_, err = ReadExcel(workbook(t), LoadOptions{Sheet: "Nope"})
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestReadExcel_LegacyWorkbook(t *testing.T) {
	biff := append(append([]byte{}, oleSignature...), make([]byte, 504)...)

	_, err := Read(bytes.NewReader(biff), "old.xls", LoadOptions{})
	assert.ErrorIs(t, err, ErrLegacyWorkbook)

	_, err = SheetNames(bytes.NewReader(biff))
	assert.ErrorIs(t, err, ErrLegacyWorkbook)

	_, err = ReadExcel(strings.NewReader("not a zip"), LoadOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLegacyWorkbook)
	assert.Contains(t, err.Error(), "invalid excel workbook")
}

func TestSheetNames(t *testing.T) {
	names, err := SheetNames(workbook(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheet1", "Targets"}, names)
}

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindNumber, KindText, KindMissing} {
		b, err := k.MarshalText()
		require.NoError(t, err)

		var got Kind
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, k, got)
	}

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("date")))
}

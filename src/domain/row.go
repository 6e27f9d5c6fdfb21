package domain

// Columns is the fixed header of every output sheet, in row order.
var Columns = []string{
	"AH_H2H_V", "AH_Act", "Res_H2H_V", "AH_L_H", "Res_L_H",
	"AH_V_A", "Res_V_A", "AH_H2H_G", "Res_H2H_G",
	"L_vs_UV_A", "V_vs_UL_H", "Regla_3",
	"Stats_L", "Stats_V",
	"Fin", "G_i", "match_id",
}

// RowWidth is the number of fields in an OutputRow.
const RowWidth = 17

// FieldKind tells the sink how a cell must be stored.
type FieldKind int

const (
	// FieldText is stored as-is.
	FieldText FieldKind = iota
	// FieldNumber is numeric-looking text that the sink must keep literal
	// (no locale conversion, no autoformatting).
	FieldNumber
)

func (k FieldKind) String() string {
	if k == FieldNumber {
		return "number"
	}
	return "text"
}

// Field is one typed cell of an OutputRow.
type Field struct {
	Kind  FieldKind
	Value string
}

func Text(v string) Field   { return Field{Kind: FieldText, Value: v} }
func Number(v string) Field { return Field{Kind: FieldNumber, Value: v} }

// OutputRow is the assembled record of one match.
type OutputRow struct {
	MatchID MatchID
	Fields  [RowWidth]Field
}

// Values returns the raw cell values in column order.
func (r OutputRow) Values() []string {
	out := make([]string, RowWidth)
	for i, f := range r.Fields {
		out[i] = f.Value
	}
	return out
}

// Kinds returns the kind of every cell in column order.
func (r OutputRow) Kinds() []string {
	out := make([]string, RowWidth)
	for i, f := range r.Fields {
		out[i] = f.Kind.String()
	}
	return out
}

// OutcomeKind classifies the result of assembling one match.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeNotFound
	OutcomeParseError
	OutcomeLoadError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeParseError:
		return "parse_error"
	case OutcomeLoadError:
		return "load_error"
	}
	return "unknown"
}

// Outcome is the result of one match assembly.
//
// For OutcomeOK, Row is set and SortKey holds the numeric current handicap
// when it could be parsed. For failures, URL and Reason describe what went
// wrong and Stage names the last step that completed.
type Outcome struct {
	Kind    OutcomeKind
	MatchID MatchID
	Row     OutputRow
	SortKey *float64
	URL     string
	Reason  string
	Stage   string
}

// NonPositive reports whether an OK outcome belongs to the away/zero bucket.
// Rows without a parsable current handicap go to the positive bucket.
func (o Outcome) NonPositive() bool {
	return o.SortKey != nil && *o.SortKey <= 0
}

package parser

import (
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/ThiagoRGoveia/stocks-dossier/pkg/checksum"
)

// DefaultFuturesInstrument is the NSE segment code for stock futures.
const DefaultFuturesInstrument = "FUTSTK"

var FuturesHeader = []string{"INSTRUMENT", "SYMBOL", "EXPIRY_DT", "EXPIRY_DT_FINAL", "STRIKE_PR", "OPTION_TYP", "OPEN", "HIGH",
	"LOW", "CLOSE", "SETTLE_PR", "CONTRACTS", "VAL_INLAKH", "OPEN_INT", "CHG_IN_OI", "TIMESTAMP"}

var futuresRequiredFields = map[int]string{
	0:  "INSTRUMENT",
	1:  "SYMBOL",
	2:  "EXPIRY_DT",
	6:  "OPEN",
	7:  "HIGH",
	8:  "LOW",
	9:  "CLOSE",
	11: "CONTRACTS",
	13: "OPEN_INT",
	14: "CHG_IN_OI",
	15: "TIMESTAMP",
}

// FuturesParser only accepts rows of a single instrument segment; options and index futures
// sharing the file are ignored.
type FuturesParser struct {
	instrument string
}

func NewFuturesParser(instrument string) *FuturesParser {
	if instrument == "" {
		instrument = DefaultFuturesInstrument
	}
	return &FuturesParser{instrument: instrument}
}

func (p *FuturesParser) Kind() models.RecordKind { return models.KindFutures }

func (p *FuturesParser) Header() []string { return FuturesHeader }

func (p *FuturesParser) IsHeaderRow(row []string) bool {
	return field(row, 0) == FuturesHeader[0]
}

func (p *FuturesParser) Eligible(row []string) bool {
	return field(row, 0) == p.instrument && hasRequiredFields(row, futuresRequiredFields)
}

func (p *FuturesParser) Parse(row []string) (models.Record, error) {
	expiryDate, err := ParseDate(field(row, 2))
	if err != nil {
		return nil, err
	}

	open, err := parseDecimal(row, 6, "OPEN")
	if err != nil {
		return nil, err
	}
	high, err := parseDecimal(row, 7, "HIGH")
	if err != nil {
		return nil, err
	}
	low, err := parseDecimal(row, 8, "LOW")
	if err != nil {
		return nil, err
	}
	closePrice, err := parseDecimal(row, 9, "CLOSE")
	if err != nil {
		return nil, err
	}
	contracts, err := parseDecimal(row, 11, "CONTRACTS")
	if err != nil {
		return nil, err
	}
	openInterest, err := parseDecimal(row, 13, "OPEN_INT")
	if err != nil {
		return nil, err
	}
	changeInOI, err := parseDecimal(row, 14, "CHG_IN_OI")
	if err != nil {
		return nil, err
	}

	timestamp, err := ParseDate(field(row, 15))
	if err != nil {
		return nil, err
	}

	instrument := field(row, 0)
	symbol := field(row, 1)

	return &models.FuturesRecord{
		Instrument:           instrument,
		Symbol:               symbol,
		ExpiryDate:           expiryDate,
		Open:                 open,
		High:                 high,
		Low:                  low,
		Close:                closePrice,
		Contracts:            contracts,
		OpenInterest:         openInterest,
		ChangeInOpenInterest: changeInOI,
		Timestamp:            timestamp,
		RowKey: checksum.CalculateHash(instrument, symbol, expiryDate.Format("2006-01-02"),
			field(row, 4), field(row, 5), timestamp.Format("2006-01-02")),
	}, nil
}

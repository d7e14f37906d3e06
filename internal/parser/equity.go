package parser

import (
	"github.com/ThiagoRGoveia/stocks-dossier/internal/models"
	"github.com/ThiagoRGoveia/stocks-dossier/pkg/checksum"
)

var EquityHeader = []string{"SYMBOL", "SERIES", "OPEN", "HIGH", "LOW", "CLOSE", "LAST", "PREVCLOSE", "TOTTRDQTY", "TOTTRDVAL",
	"TIMESTAMP", "TOTALTRADES", "ISIN"}

// equityRequiredFields specifies the indices of fields that cannot be empty.
var equityRequiredFields = map[int]string{
	0:  "SYMBOL",
	2:  "OPEN",
	3:  "HIGH",
	4:  "LOW",
	5:  "CLOSE",
	8:  "TOTTRDQTY",
	10: "TIMESTAMP",
	11: "TOTALTRADES",
}

type EquityParser struct{}

func NewEquityParser() *EquityParser {
	return &EquityParser{}
}

func (p *EquityParser) Kind() models.RecordKind { return models.KindEquity }

func (p *EquityParser) Header() []string { return EquityHeader }

func (p *EquityParser) IsHeaderRow(row []string) bool {
	return field(row, 0) == EquityHeader[0]
}

func (p *EquityParser) Eligible(row []string) bool {
	return hasRequiredFields(row, equityRequiredFields)
}

func (p *EquityParser) Parse(row []string) (models.Record, error) {
	// SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,LAST,PREVCLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP,TOTALTRADES,ISIN
	open, err := parseDecimal(row, 2, "OPEN")
	if err != nil {
		return nil, err
	}
	high, err := parseDecimal(row, 3, "HIGH")
	if err != nil {
		return nil, err
	}
	low, err := parseDecimal(row, 4, "LOW")
	if err != nil {
		return nil, err
	}
	closePrice, err := parseDecimal(row, 5, "CLOSE")
	if err != nil {
		return nil, err
	}

	tradedQuantity, err := parseInt(row, 8, "TOTTRDQTY")
	if err != nil {
		return nil, err
	}

	timestamp, err := ParseDate(field(row, 10))
	if err != nil {
		return nil, err
	}

	totalTrades, err := parseInt(row, 11, "TOTALTRADES")
	if err != nil {
		return nil, err
	}

	symbol := field(row, 0)
	series := field(row, 1)

	return &models.EquityRecord{
		Symbol:              symbol,
		Series:              series,
		Open:                open,
		High:                high,
		Low:                 low,
		Close:               closePrice,
		TotalTradedQuantity: tradedQuantity,
		Timestamp:           timestamp,
		TotalTrades:         totalTrades,
		RowKey:              checksum.CalculateHash(symbol, series, timestamp.Format("2006-01-02")),
	}, nil
}

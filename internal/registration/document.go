package registration

import (
	"encoding/xml"
	"fmt"
	"time"
)

const depositSchemaVersion = "1.0"

// Document is the batch deposit handed to an agency.
type Document struct {
	XMLName   xml.Name       `xml:"doi_batch"`
	Version   string         `xml:"version,attr"`
	BatchID   string         `xml:"head>doi_batch_id"`
	Timestamp int64          `xml:"head>timestamp"`
	Depositor string         `xml:"head>depositor>depositor_name,omitempty"`
	Items     []DocumentItem `xml:"body>doi_data"`
}

// DocumentItem is one DOI in a deposit.
type DocumentItem struct {
	ID    int64  `xml:"id,attr"`
	Value string `xml:"doi"`
}

// Encode renders the document with an XML header.
func (d Document) Encode() ([]byte, error) {
	body, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("registration: encode deposit %s: %w", d.BatchID, err)
	}
	return append([]byte(xml.Header), body...), nil
}

func newDocument(batchID, depositor string, issuedAt time.Time, items []DocumentItem) Document {
	return Document{
		Version:   depositSchemaVersion,
		BatchID:   batchID,
		Timestamp: issuedAt.UTC().UnixMilli(),
		Depositor: depositor,
		Items:     items,
	}
}

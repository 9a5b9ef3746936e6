package eds

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Field is one named value inside a record. IDs come back as
// "<device>.<variable>", e.g. "T2.EPimp".
type Field struct {
	ID    string `xml:"id"`
	Value string `xml:"value"`
}

// Device returns the device prefix of the field id
func (f Field) Device() string {
	if i := strings.Index(f.ID, "."); i >= 0 {
		return f.ID[:i]
	}
	return f.ID
}

// Variable returns the variable suffix of the field id
func (f Field) Variable() string {
	if i := strings.Index(f.ID, "."); i >= 0 {
		return f.ID[i+1:]
	}
	return ""
}

// Float parses the field value, yielding 0 for unparseable text
func (f Field) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(f.Value), 64)
	if err != nil {
		return 0
	}
	return v
}

// Int parses the field value as an integer, truncating any fraction and
// yielding 0 for unparseable text
func (f Field) Int() int {
	return int(f.Float())
}

// Record is one time bucket of field values
type Record struct {
	DateTime string  `xml:"dateTime"`
	Fields   []Field `xml:"field"`
}

type recordGroup struct {
	XMLName xml.Name `xml:"recordGroup"`
	Records []Record `xml:"record"`
}

// ParseRecords normalizes a records.xml body into an ordered record list.
// Controllers emit a bare <record> element for single-bucket windows and a
// sequence otherwise; both decode into the same list. A missing or
// unparseable recordGroup yields nil, which callers treat as "nothing to
// publish this cycle".
func ParseRecords(body []byte) []Record {
	var group recordGroup
	if err := xml.Unmarshal(body, &group); err != nil {
		return nil
	}
	if len(group.Records) == 0 {
		return nil
	}
	return group.Records
}

// Variable is one instantaneous value from values.xml
type Variable struct {
	ID    string `xml:"id"`
	Value string `xml:"value"`
}

// Float parses the variable value, yielding 0 for unparseable text
func (v Variable) Float() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
	if err != nil {
		return 0
	}
	return f
}

type valuesDoc struct {
	XMLName   xml.Name   `xml:"values"`
	Variables []Variable `xml:"variable"`
}

// ParseValues normalizes a values.xml body, nil when absent or unparseable
func ParseValues(body []byte) []Variable {
	var doc valuesDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil
	}
	if len(doc.Variables) == 0 {
		return nil
	}
	return doc.Variables
}

// DeviceInfo is one device entry from deviceInfo.xml
type DeviceInfo struct {
	ID          string `xml:"id"`
	Description string `xml:"description"`
}

type devicesDoc struct {
	XMLName xml.Name     `xml:"devices"`
	Devices []DeviceInfo `xml:"device"`
}

// ParseDeviceInfo normalizes a deviceInfo.xml body, nil when absent
func ParseDeviceInfo(body []byte) []DeviceInfo {
	var doc devicesDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil
	}
	if len(doc.Devices) == 0 {
		return nil
	}
	return doc.Devices
}

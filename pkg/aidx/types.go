package aidx

import "encoding/xml"

// Namespace is the IATA AIDX target namespace
const Namespace = "http://www.iata.org/IATA/2007/00"

// Root element names
const (
	RootFlightLegRQ      = "IATA_AIDX_FlightLegRQ"
	RootFlightLegNotifRQ = "IATA_AIDX_FlightLegNotifRQ"
	RootFlightLegRS      = "IATA_AIDX_FlightLegRS"
)

// MessageTypeFlightLegRS is the message_type metadata value of a flight leg
// response
const MessageTypeFlightLegRS = "IATAAIDXFlightLegRS"

// Transaction status codes
const (
	StatusSuccess = "Success"
	StatusEnd     = "End"
)

// Document is implemented by every AIDX message type
type Document interface {
	// MessageType returns the value used for the message_type metadata entry
	MessageType() string
}

// MessageAttributes are the OTA-style attributes shared by all AIDX messages
type MessageAttributes struct {
	Version               string `xml:"Version,attr,omitempty"`
	TimeStamp             string `xml:"TimeStamp,attr,omitempty"`
	Target                string `xml:"Target,attr,omitempty"`
	TransactionIdentifier string `xml:"TransactionIdentifier,attr,omitempty"`
	SequenceNmbr          string `xml:"SequenceNmbr,attr,omitempty"`
	TransactionStatusCode string `xml:"TransactionStatusCode,attr,omitempty"`
	CorrelationID         string `xml:"CorrelationID,attr,omitempty"`
}

// FlightLegRQ requests flight leg information
type FlightLegRQ struct {
	XMLName xml.Name `xml:"http://www.iata.org/IATA/2007/00 IATA_AIDX_FlightLegRQ"`
	MessageAttributes
	Originator *Originator `xml:"Originator,omitempty"`
	FlightLegs []FlightLeg `xml:"FlightLeg"`
}

// MessageType implements Document
func (*FlightLegRQ) MessageType() string { return "IATAAIDXFlightLegRQ" }

// FlightLegNotifRQ notifies a change to one or more flight legs
type FlightLegNotifRQ struct {
	XMLName xml.Name `xml:"http://www.iata.org/IATA/2007/00 IATA_AIDX_FlightLegNotifRQ"`
	MessageAttributes
	Originator *Originator `xml:"Originator,omitempty"`
	FlightLegs []FlightLeg `xml:"FlightLeg"`
}

// MessageType implements Document
func (*FlightLegNotifRQ) MessageType() string { return "IATAAIDXFlightLegNotifRQ" }

// FlightLegRS answers a FlightLegRQ or FlightLegNotifRQ
type FlightLegRS struct {
	XMLName xml.Name `xml:"http://www.iata.org/IATA/2007/00 IATA_AIDX_FlightLegRS"`
	MessageAttributes
	Success    *Success    `xml:"Success,omitempty"`
	Errors     *Errors     `xml:"Errors,omitempty"`
	FlightLegs []FlightLeg `xml:"FlightLeg"`
}

// MessageType implements Document
func (*FlightLegRS) MessageType() string { return MessageTypeFlightLegRS }

// Success marks a successful response. It carries no content.
type Success struct{}

// Errors lists processing errors in a response
type Errors struct {
	Errors []Error `xml:"Error"`
}

// Error is a single response error
type Error struct {
	Type      string `xml:"Type,attr,omitempty"`
	Code      string `xml:"Code,attr,omitempty"`
	ShortText string `xml:"ShortText,attr,omitempty"`
	Value     string `xml:",chardata"`
}

// Originator identifies the sending system
type Originator struct {
	CompanyShortName string `xml:"CompanyShortName,attr,omitempty"`
	TravelSector     string `xml:"TravelSector,attr,omitempty"`
	Code             string `xml:"Code,attr,omitempty"`
	CodeContext      string `xml:"CodeContext,attr,omitempty"`
}

// CodedValue is a code with an optional code context, such as an airline or
// airport designator.
type CodedValue struct {
	Value       string `xml:",chardata"`
	CodeContext string `xml:"CodeContext,attr,omitempty"`
}

// FlightLeg is one leg of a flight
type FlightLeg struct {
	LegIdentifier LegIdentifier `xml:"LegIdentifier"`
	LegData       *LegData      `xml:"LegData,omitempty"`
}

// LegIdentifier uniquely identifies a flight leg
type LegIdentifier struct {
	Airline           CodedValue `xml:"Airline"`
	FlightNumber      string     `xml:"FlightNumber"`
	OperationalSuffix string     `xml:"OperationalSuffix,omitempty"`
	DepartureAirport  CodedValue `xml:"DepartureAirport"`
	ArrivalAirport    CodedValue `xml:"ArrivalAirport"`
	OriginDate        string     `xml:"OriginDate,omitempty"`
}

// LegData carries operational data for a flight leg
type LegData struct {
	OperationalStatus []CodedValue       `xml:"OperationalStatus"`
	OperationTime     []OperationTime    `xml:"OperationTime"`
	AirportResources  []AirportResources `xml:"AirportResources"`
}

// OperationTime is a time stamped event such as a scheduled departure
type OperationTime struct {
	Value              string `xml:",chardata"`
	TimeType           string `xml:"TimeType,attr,omitempty"`
	OperationQualifier string `xml:"OperationQualifier,attr,omitempty"`
	CodeContext        string `xml:"CodeContext,attr,omitempty"`
}

// AirportResources describes gates, stands and other allocated resources
type AirportResources struct {
	Usage    string     `xml:"Usage,attr,omitempty"`
	Resource []Resource `xml:"Resource"`
}

// Resource is a single allocated airport resource
type Resource struct {
	DepartureOrArrival string `xml:"DepartureOrArrival,attr,omitempty"`
	Gate               string `xml:"Gate,omitempty"`
	Stand              string `xml:"Stand,omitempty"`
	Terminal           string `xml:"Terminal,omitempty"`
}

// Usage values for AirportResources
const (
	UsagePlanned   = "Planned"
	UsageEstimated = "Estimated"
	UsageActual    = "Actual"
)

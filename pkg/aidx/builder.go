package aidx

import (
	"errors"
	"fmt"
	"time"
)

// ErrBuild is returned when a response cannot be built for a request
var ErrBuild = errors.New("aidx build failed")

// metadata key read as a correlation fallback
const metaCorrelationID = "correlation_id"

// ResponseBuilder builds FlightLegRS acknowledgements
type ResponseBuilder struct {
	now func() time.Time
}

// BuilderOption configures a ResponseBuilder
type BuilderOption func(*ResponseBuilder)

// WithClock sets the time source used for TimeStamp
func WithClock(now func() time.Time) BuilderOption {
	return func(b *ResponseBuilder) { b.now = now }
}

// NewResponseBuilder creates a ResponseBuilder
func NewResponseBuilder(opts ...BuilderOption) *ResponseBuilder {
	b := &ResponseBuilder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RespondToRequest answers a FlightLegRQ. Each requested leg is echoed with
// its scheduled data.
func (b *ResponseBuilder) RespondToRequest(rq *FlightLegRQ, metadata map[string]string) (*FlightLegRS, error) {
	if rq == nil {
		return nil, fmt.Errorf("%w: nil FlightLegRQ", ErrBuild)
	}

	rs := b.header(rq.MessageAttributes, metadata)
	for _, leg := range rq.FlightLegs {
		rs.FlightLegs = append(rs.FlightLegs, FlightLeg{
			LegIdentifier: leg.LegIdentifier,
			LegData:       scheduledLegData(leg.LegData),
		})
	}
	return rs, nil
}

// RespondToNotification acknowledges a FlightLegNotifRQ by echoing the
// identifier of every notified leg.
func (b *ResponseBuilder) RespondToNotification(notif *FlightLegNotifRQ, metadata map[string]string) (*FlightLegRS, error) {
	if notif == nil {
		return nil, fmt.Errorf("%w: nil FlightLegNotifRQ", ErrBuild)
	}

	rs := b.header(notif.MessageAttributes, metadata)
	for _, leg := range notif.FlightLegs {
		rs.FlightLegs = append(rs.FlightLegs, FlightLeg{LegIdentifier: leg.LegIdentifier})
	}
	return rs, nil
}

func (b *ResponseBuilder) header(in MessageAttributes, metadata map[string]string) *FlightLegRS {
	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = metadata[metaCorrelationID]
	}

	return &FlightLegRS{
		MessageAttributes: MessageAttributes{
			Version:               in.Version,
			TimeStamp:             b.now().UTC().Format(time.RFC3339),
			Target:                in.Target,
			TransactionIdentifier: in.TransactionIdentifier,
			SequenceNmbr:          in.SequenceNmbr,
			TransactionStatusCode: StatusSuccess,
			CorrelationID:         correlationID,
		},
		Success: &Success{},
	}
}

// scheduledLegData keeps the scheduled times and planned resources of the
// requested leg and marks it as scheduled.
func scheduledLegData(in *LegData) *LegData {
	out := &LegData{
		OperationalStatus: []CodedValue{{Value: "Scheduled", CodeContext: "Operational"}},
	}
	if in == nil {
		return out
	}

	for _, t := range in.OperationTime {
		if t.TimeType == "S" {
			out.OperationTime = append(out.OperationTime, t)
		}
	}
	for _, r := range in.AirportResources {
		if r.Usage == UsagePlanned {
			out.AirportResources = append(out.AirportResources, AirportResources{
				Usage:    r.Usage,
				Resource: append([]Resource(nil), r.Resource...),
			})
		}
	}
	return out
}

package aidx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flightLegRQ = `<?xml version="1.0" encoding="UTF-8"?>
<IATA_AIDX_FlightLegRQ xmlns="http://www.iata.org/IATA/2007/00" Version="21.3" TimeStamp="2025-12-15T10:00:00Z"
    Target="Production" TransactionIdentifier="TX-9" SequenceNmbr="7" CorrelationID="corr-42">
  <Originator CompanyShortName="LAX" TravelSector="Aviation"/>
  <FlightLeg>
    <LegIdentifier>
      <Airline CodeContext="IATA">AA</Airline>
      <FlightNumber>123</FlightNumber>
      <DepartureAirport CodeContext="3">LAX</DepartureAirport>
      <ArrivalAirport CodeContext="3">GRU</ArrivalAirport>
      <OriginDate>2025-12-15</OriginDate>
    </LegIdentifier>
    <LegData>
      <OperationTime TimeType="S" OperationQualifier="TD" CodeContext="9750">2025-12-15T22:10:00Z</OperationTime>
      <OperationTime TimeType="E" OperationQualifier="TD" CodeContext="9750">2025-12-15T22:40:00Z</OperationTime>
      <AirportResources Usage="Planned">
        <Resource DepartureOrArrival="Departure"><Gate>52</Gate><Terminal>4</Terminal></Resource>
      </AirportResources>
      <AirportResources Usage="Actual">
        <Resource DepartureOrArrival="Departure"><Gate>53</Gate></Resource>
      </AirportResources>
    </LegData>
  </FlightLeg>
</IATA_AIDX_FlightLegRQ>`

const flightLegNotifRQ = `<IATA_AIDX_FlightLegNotifRQ xmlns="http://www.iata.org/IATA/2007/00" Version="21.3" TransactionIdentifier="TX-10">
  <FlightLeg>
    <LegIdentifier>
      <Airline>QR</Airline>
      <FlightNumber>1234</FlightNumber>
      <DepartureAirport>LAX</DepartureAirport>
      <ArrivalAirport>DOH</ArrivalAirport>
    </LegIdentifier>
    <LegData>
      <OperationalStatus CodeContext="Operational">OffBlock</OperationalStatus>
    </LegData>
  </FlightLeg>
</IATA_AIDX_FlightLegNotifRQ>`

func TestCodec_Decode(t *testing.T) {
	codec := NewCodec()

	t.Run("flight leg request", func(t *testing.T) {
		v, err := codec.Decode([]byte(flightLegRQ))
		require.NoError(t, err)
		rq, ok := v.(*FlightLegRQ)
		require.True(t, ok, "got %T", v)

		assert.Equal(t, "21.3", rq.Version)
		assert.Equal(t, "corr-42", rq.CorrelationID)
		assert.Equal(t, "TX-9", rq.TransactionIdentifier)
		assert.Equal(t, "7", rq.SequenceNmbr)
		require.NotNil(t, rq.Originator)
		assert.Equal(t, "LAX", rq.Originator.CompanyShortName)
		require.Len(t, rq.FlightLegs, 1)
		leg := rq.FlightLegs[0]
		assert.Equal(t, "AA", leg.LegIdentifier.Airline.Value)
		assert.Equal(t, "IATA", leg.LegIdentifier.Airline.CodeContext)
		assert.Equal(t, "123", leg.LegIdentifier.FlightNumber)
		assert.Equal(t, "LAX", leg.LegIdentifier.DepartureAirport.Value)
		require.NotNil(t, leg.LegData)
		assert.Len(t, leg.LegData.OperationTime, 2)
		assert.Len(t, leg.LegData.AirportResources, 2)
	})

	t.Run("flight leg notification", func(t *testing.T) {
		v, err := codec.Decode([]byte(flightLegNotifRQ))
		require.NoError(t, err)
		notif, ok := v.(*FlightLegNotifRQ)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, "TX-10", notif.TransactionIdentifier)
		require.Len(t, notif.FlightLegs, 1)
		assert.Equal(t, "QR", notif.FlightLegs[0].LegIdentifier.Airline.Value)
	})

	t.Run("flight leg response", func(t *testing.T) {
		v, err := codec.Decode([]byte(`<IATA_AIDX_FlightLegRS xmlns="http://www.iata.org/IATA/2007/00" TransactionStatusCode="Success"><Success/></IATA_AIDX_FlightLegRS>`))
		require.NoError(t, err)
		rs, ok := v.(*FlightLegRS)
		require.True(t, ok, "got %T", v)
		assert.NotNil(t, rs.Success)
	})
}

func TestCodec_DecodeAbsent(t *testing.T) {
	codec := NewCodec()

	for _, body := range []string{"", "   \n\t", `<?xml version="1.0"?>`} {
		v, err := codec.Decode([]byte(body))
		require.NoError(t, err, "body %q", body)
		assert.Nil(t, v, "body %q", body)
	}
}

func TestCodec_DecodeErrors(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name string
		body string
	}{
		{"not xml", "flight LAX-123"},
		{"unterminated", `<IATA_AIDX_FlightLegRQ xmlns="http://www.iata.org/IATA/2007/00">`},
		{"unknown root", `<IATA_AIDX_BagTagRQ xmlns="http://www.iata.org/IATA/2007/00"/>`},
		{"missing namespace", `<IATA_AIDX_FlightLegRQ Version="21.3"/>`},
		{"foreign namespace", `<IATA_AIDX_FlightLegRQ xmlns="urn:example"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := codec.Decode([]byte(tt.body))
			assert.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, v)
		})
	}
}

func TestCodec_Encode(t *testing.T) {
	codec := NewCodec()

	rs := &FlightLegRS{
		MessageAttributes: MessageAttributes{
			Version:               "21.3",
			TransactionStatusCode: StatusSuccess,
			CorrelationID:         "corr-42",
		},
		Success: &Success{},
	}
	out, err := codec.Encode(rs)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Contains(t, text, `<IATA_AIDX_FlightLegRS xmlns="http://www.iata.org/IATA/2007/00"`)
	assert.Contains(t, text, `CorrelationID="corr-42"`)
	assert.Contains(t, text, `<Success></Success>`)
	assert.NotContains(t, text, "TimeStamp=")

	// The encoded response is accepted by Decode.
	back, err := codec.Decode(out)
	require.NoError(t, err)
	assert.IsType(t, &FlightLegRS{}, back)
}

func TestCodec_EncodeErrors(t *testing.T) {
	codec := NewCodec()

	_, err := codec.Encode(nil)
	assert.ErrorIs(t, err, ErrEncode)

	_, err = codec.Encode(struct{ Name string }{"not a document"})
	assert.ErrorIs(t, err, ErrEncode)
}

type bagTagRQ struct {
	Tag string `xml:"Tag"`
}

func (*bagTagRQ) MessageType() string { return "BagTagRQ" }

func TestCodec_Register(t *testing.T) {
	codec := NewCodec()
	codec.Register("IATA_AIDX_BagTagRQ", func() Document { return &bagTagRQ{} })

	v, err := codec.Decode([]byte(`<IATA_AIDX_BagTagRQ xmlns="http://www.iata.org/IATA/2007/00"><Tag>0125123456</Tag></IATA_AIDX_BagTagRQ>`))
	require.NoError(t, err)
	bag, ok := v.(*bagTagRQ)
	require.True(t, ok)
	assert.Equal(t, "0125123456", bag.Tag)
}

func fixedClock() time.Time {
	return time.Date(2025, 12, 15, 10, 30, 0, 0, time.FixedZone("PST", -8*3600))
}

func TestResponseBuilder_RespondToRequest(t *testing.T) {
	v, err := NewCodec().Decode([]byte(flightLegRQ))
	require.NoError(t, err)
	rq := v.(*FlightLegRQ)

	builder := NewResponseBuilder(WithClock(fixedClock))
	rs, err := builder.RespondToRequest(rq, map[string]string{"correlation_id": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, "21.3", rs.Version)
	assert.Equal(t, "corr-42", rs.CorrelationID)
	assert.Equal(t, "TX-9", rs.TransactionIdentifier)
	assert.Equal(t, "7", rs.SequenceNmbr)
	assert.Equal(t, "Production", rs.Target)
	assert.Equal(t, StatusSuccess, rs.TransactionStatusCode)
	assert.Equal(t, "2025-12-15T18:30:00Z", rs.TimeStamp)
	assert.NotNil(t, rs.Success)
	assert.Nil(t, rs.Errors)
	assert.Equal(t, MessageTypeFlightLegRS, rs.MessageType())

	require.Len(t, rs.FlightLegs, 1)
	leg := rs.FlightLegs[0]
	assert.Equal(t, rq.FlightLegs[0].LegIdentifier, leg.LegIdentifier)
	require.NotNil(t, leg.LegData)
	assert.Equal(t, []CodedValue{{Value: "Scheduled", CodeContext: "Operational"}}, leg.LegData.OperationalStatus)
	require.Len(t, leg.LegData.OperationTime, 1)
	assert.Equal(t, "S", leg.LegData.OperationTime[0].TimeType)
	require.Len(t, leg.LegData.AirportResources, 1)
	assert.Equal(t, UsagePlanned, leg.LegData.AirportResources[0].Usage)
	assert.Equal(t, "52", leg.LegData.AirportResources[0].Resource[0].Gate)
}

func TestResponseBuilder_RespondToNotification(t *testing.T) {
	v, err := NewCodec().Decode([]byte(flightLegNotifRQ))
	require.NoError(t, err)
	notif := v.(*FlightLegNotifRQ)

	rs, err := NewResponseBuilder(WithClock(fixedClock)).RespondToNotification(notif, map[string]string{"correlation_id": "corr-meta"})
	require.NoError(t, err)

	// The notification carries no CorrelationID attribute, so metadata is used.
	assert.Equal(t, "corr-meta", rs.CorrelationID)
	assert.Equal(t, "TX-10", rs.TransactionIdentifier)
	assert.Equal(t, StatusSuccess, rs.TransactionStatusCode)
	require.Len(t, rs.FlightLegs, 1)
	assert.Equal(t, "1234", rs.FlightLegs[0].LegIdentifier.FlightNumber)
	assert.Nil(t, rs.FlightLegs[0].LegData)
}

func TestResponseBuilder_NilInput(t *testing.T) {
	builder := NewResponseBuilder()

	_, err := builder.RespondToRequest(nil, nil)
	assert.ErrorIs(t, err, ErrBuild)

	_, err = builder.RespondToNotification(nil, nil)
	assert.ErrorIs(t, err, ErrBuild)
}

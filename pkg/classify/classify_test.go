package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/aidx"
)

func TestClassify(t *testing.T) {
	rq := &aidx.FlightLegRQ{}
	notif := &aidx.FlightLegNotifRQ{}
	rs := &aidx.FlightLegRS{}

	tests := []struct {
		name    string
		decoded any
		kind    Kind
	}{
		{"request", rq, KindRequest},
		{"notification", notif, KindNotification},
		{"response is not handled", rs, KindUnsupported},
		{"plain string", "LAX-123", KindUnsupported},
		{"value instead of pointer", aidx.FlightLegRQ{}, KindUnsupported},
		{"nil", nil, KindAbsent},
		{"typed nil request", (*aidx.FlightLegRQ)(nil), KindAbsent},
		{"nil map", map[string]string(nil), KindAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Classify(tt.decoded)
			require.NotNil(t, outcome)
			assert.Equal(t, tt.kind, outcome.Kind())
		})
	}
}

func TestClassify_CarriesDocument(t *testing.T) {
	rq := &aidx.FlightLegRQ{MessageAttributes: aidx.MessageAttributes{CorrelationID: "corr-42"}}

	req, ok := Classify(rq).(Request)
	require.True(t, ok)
	assert.Same(t, rq, req.Document)

	notif := &aidx.FlightLegNotifRQ{}
	n, ok := Classify(notif).(Notification)
	require.True(t, ok)
	assert.Same(t, notif, n.Document)
}

func TestClassify_UnsupportedTypeTag(t *testing.T) {
	u, ok := Classify(&aidx.FlightLegRS{}).(Unsupported)
	require.True(t, ok)
	assert.Equal(t, "*aidx.FlightLegRS", u.TypeTag)

	u, ok = Classify(42).(Unsupported)
	require.True(t, ok)
	assert.Equal(t, "int", u.TypeTag)
	assert.Equal(t, 42, u.Value)
}

func TestClassify_Deterministic(t *testing.T) {
	rq := &aidx.FlightLegRQ{}
	first := Classify(rq)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(rq))
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "absent", KindAbsent.String())
	assert.Equal(t, "request", KindRequest.String())
	assert.Equal(t, "notification", KindNotification.String())
	assert.Equal(t, "unsupported", KindUnsupported.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

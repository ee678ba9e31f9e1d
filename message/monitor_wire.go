package message

import "google.golang.org/protobuf/encoding/protowire"

func (r *ResultCode) appendWire(b []byte) []byte {
	b = appendVarint(b, 1, uint64(int64(r.ErrCode)))
	return appendString(b, 2, r.ErrMsg)
}

func (r *ResultCode) MarshalWire() ([]byte, error) {
	return r.appendWire(nil), nil
}

func (r *ResultCode) UnmarshalWire(data []byte) error {
	*r = ResultCode{}
	return r.merge(data)
}

// merge decodes data over r. A repeated embedded field merges into the
// value decoded so far.
func (r *ResultCode) merge(data []byte) error {
	return fields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			r.ErrCode = int32(v)
			return n, err
		case 2:
			return consumeString(typ, b, &r.ErrMsg)
		}
		return -1, nil
	})
}

func (m *MetricsData) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.ServerName)
	b = appendVarint(b, 2, uint64(m.Timestamp))
	b = appendFloat(b, 3, m.CPUUsage)
	return appendFloat(b, 4, m.MemoryUsage)
}

func (m *MetricsData) MarshalWire() ([]byte, error) {
	return m.appendWire(nil), nil
}

func (m *MetricsData) UnmarshalWire(data []byte) error {
	*m = MetricsData{}
	return m.merge(data)
}

func (m *MetricsData) merge(data []byte) error {
	return fields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.ServerName)
		case 2:
			v, n, err := consumeVarint(typ, b)
			m.Timestamp = int64(v)
			return n, err
		case 3:
			return consumeFloat(typ, b, &m.CPUUsage)
		case 4:
			return consumeFloat(typ, b, &m.MemoryUsage)
		}
		return -1, nil
	})
}

func (r *ReportRequest) MarshalWire() ([]byte, error) {
	return appendMessage(nil, 1, r.Metrics.appendWire(nil)), nil
}

func (r *ReportRequest) UnmarshalWire(data []byte) error {
	*r = ReportRequest{}
	return fields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		v, n, err := consumeBytes(typ, b)
		if err != nil {
			return 0, err
		}
		return n, r.Metrics.merge(v)
	})
}

func (r *ReportResponse) MarshalWire() ([]byte, error) {
	b := appendMessage(nil, 1, r.Result.appendWire(nil))
	return appendBool(b, 2, r.Success), nil
}

func (r *ReportResponse) UnmarshalWire(data []byte) error {
	*r = ReportResponse{}
	return fields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, r.Result.merge(v)
		case 2:
			v, n, err := consumeVarint(typ, b)
			r.Success = protowire.DecodeBool(v)
			return n, err
		}
		return -1, nil
	})
}

func (r *QueryRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, r.ServerName), nil
}

func (r *QueryRequest) UnmarshalWire(data []byte) error {
	*r = QueryRequest{}
	return fields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return -1, nil
		}
		return consumeString(typ, b, &r.ServerName)
	})
}

func (r *QueryResponse) MarshalWire() ([]byte, error) {
	b := appendMessage(nil, 1, r.Result.appendWire(nil))
	for i := range r.Metrics {
		b = appendMessage(b, 2, r.Metrics[i].appendWire(nil))
	}
	return appendBool(b, 3, r.Success), nil
}

func (r *QueryResponse) UnmarshalWire(data []byte) error {
	*r = QueryResponse{}
	return fields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			return n, r.Result.merge(v)
		case 2:
			v, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			var m MetricsData
			if err := m.UnmarshalWire(v); err != nil {
				return 0, err
			}
			r.Metrics = append(r.Metrics, m)
			return n, nil
		case 3:
			v, n, err := consumeVarint(typ, b)
			r.Success = protowire.DecodeBool(v)
			return n, err
		}
		return -1, nil
	})
}

package model

import "strconv"

// SizeStats summarizes a packet-size distribution.
type SizeStats struct {
	Mean float64
	Min  float64
	Max  float64
	Std  float64
	Var  float64
	CV   float64
}

func (s SizeStats) row() []float64 {
	return []float64{s.Mean, s.Min, s.Max, s.Std, s.Var, s.CV}
}

// IATStats summarizes successive inter-arrival deltas.
type IATStats struct {
	Mean float64
	Min  float64
	Max  float64
	Std  float64
	Var  float64
}

func (s IATStats) row() []float64 {
	return []float64{s.Mean, s.Min, s.Max, s.Std, s.Var}
}

// FeatureVector is the fixed statistics vector computed for one window of
// one flow. Field order mirrors FeatureColumns; every value is finite.
type FeatureVector struct {
	TotalPackets    float64
	OutgoingPackets float64
	IncomingPackets float64
	TotalBytes      float64
	OutgoingBytes   float64
	IncomingBytes   float64

	Size    SizeStats
	SizeOut SizeStats
	SizeIn  SizeStats

	IAT    IATStats
	IATOut IATStats
	IATIn  IATStats

	ShortHeaderCount float64
	LongHeaderCount  float64
	ShortHeaderRatio float64
	LongHeaderRatio  float64

	SpinBitCount   float64
	SpinBitRatio   float64
	NoSpinBitRatio float64

	InitialPackets   float64
	HandshakePackets float64
	ZeroRTTPackets   float64
	OneRTTPackets    float64
	RetryPackets     float64
	InitialRatio     float64
	HandshakeRatio   float64
	ZeroRTTRatio     float64
	OneRTTRatio      float64
	RetryRatio       float64

	EntropyDirection  float64
	EntropyPacketSize float64
	Duration          float64
}

// FeatureColumns is the canonical ordered list of feature column names,
// shared by the CSV headers and the ClickHouse table schema. Its order is
// fixed so that every output of a run is column-compatible with every other.
var FeatureColumns = []string{
	"total_packets", "outgoing_packets", "incoming_packets",
	"total_bytes", "outgoing_bytes", "incoming_bytes",
	"packet_size_mean", "packet_size_min", "packet_size_max",
	"packet_size_std", "packet_size_var", "packet_size_cv",
	"packet_size_out_mean", "packet_size_out_min", "packet_size_out_max",
	"packet_size_out_std", "packet_size_out_var", "packet_size_out_cv",
	"packet_size_in_mean", "packet_size_in_min", "packet_size_in_max",
	"packet_size_in_std", "packet_size_in_var", "packet_size_in_cv",
	"iat_mean", "iat_min", "iat_max", "iat_std", "iat_var",
	"iat_out_mean", "iat_out_min", "iat_out_max", "iat_out_std", "iat_out_var",
	"iat_in_mean", "iat_in_min", "iat_in_max", "iat_in_std", "iat_in_var",
	"short_header_count", "long_header_count",
	"short_header_ratio", "long_header_ratio",
	"spin_bit_count", "spin_bit_ratio", "no_spin_bit_ratio",
	"initial_packets", "handshake_packets", "zerortt_packets",
	"onertt_packets", "retry_packets",
	"initial_ratio", "handshake_ratio", "zerortt_ratio",
	"onertt_ratio", "retry_ratio",
	"entropy_direction", "entropy_packet_size", "duration",
}

// Row returns the vector's values in FeatureColumns order.
func (v *FeatureVector) Row() []float64 {
	row := make([]float64, 0, len(FeatureColumns))
	row = append(row,
		v.TotalPackets, v.OutgoingPackets, v.IncomingPackets,
		v.TotalBytes, v.OutgoingBytes, v.IncomingBytes)
	row = append(row, v.Size.row()...)
	row = append(row, v.SizeOut.row()...)
	row = append(row, v.SizeIn.row()...)
	row = append(row, v.IAT.row()...)
	row = append(row, v.IATOut.row()...)
	row = append(row, v.IATIn.row()...)
	row = append(row,
		v.ShortHeaderCount, v.LongHeaderCount,
		v.ShortHeaderRatio, v.LongHeaderRatio,
		v.SpinBitCount, v.SpinBitRatio, v.NoSpinBitRatio,
		v.InitialPackets, v.HandshakePackets, v.ZeroRTTPackets,
		v.OneRTTPackets, v.RetryPackets,
		v.InitialRatio, v.HandshakeRatio, v.ZeroRTTRatio,
		v.OneRTTRatio, v.RetryRatio,
		v.EntropyDirection, v.EntropyPacketSize, v.Duration)
	return row
}

// FormatValue renders one feature value for textual output: shortest decimal
// form that round-trips, so counts stay integral and ratios keep full
// precision.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

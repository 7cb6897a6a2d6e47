// Package feature computes the fixed per-window statistics vector for
// reconstructed QUIC flows.
package feature

import (
	"math"

	"QuicSieve/internal/model"
)

// Compute returns the feature vector for exactly the records it receives.
// Callers materialize a window as a prefix slice of the flow; nothing beyond
// the slice is reachable from here, so statistics for a truncated window
// cannot depend on later packets or on the flow's real length. Every value
// in the result is finite: empty and single-sample cases resolve to 0.
func Compute(packets []*model.PacketRecord) *model.FeatureVector {
	v := &model.FeatureVector{}
	if len(packets) == 0 {
		return v
	}

	outgoing := make([]*model.PacketRecord, 0, len(packets))
	incoming := make([]*model.PacketRecord, 0, len(packets))
	for _, p := range packets {
		if p.Direction == model.DirOutgoing {
			outgoing = append(outgoing, p)
		} else {
			incoming = append(incoming, p)
		}
	}

	v.TotalPackets = float64(len(packets))
	v.OutgoingPackets = float64(len(outgoing))
	v.IncomingPackets = float64(len(incoming))
	v.TotalBytes = sumBytes(packets)
	v.OutgoingBytes = sumBytes(outgoing)
	v.IncomingBytes = sumBytes(incoming)

	v.Size = sizeStats(packets)
	v.SizeOut = sizeStats(outgoing)
	v.SizeIn = sizeStats(incoming)

	v.IAT = iatStats(packets)
	v.IATOut = iatStats(outgoing)
	v.IATIn = iatStats(incoming)

	countHeaders(packets, v)
	countSpin(packets, v)
	countTypes(packets, v)

	dirs := make([]int, len(packets))
	bins := make([]int, len(packets))
	for i, p := range packets {
		dirs[i] = int(p.Direction)
		bins[i] = p.Size / 10 // 10-byte bins
	}
	v.EntropyDirection = shannonEntropy(dirs)
	v.EntropyPacketSize = shannonEntropy(bins)

	// Duration spans the window only, first to last record.
	if len(packets) > 1 {
		v.Duration = packets[len(packets)-1].Timestamp - packets[0].Timestamp
	}
	return v
}

func sumBytes(packets []*model.PacketRecord) float64 {
	total := 0
	for _, p := range packets {
		total += p.Size
	}
	return float64(total)
}

// moments computes mean, min, max, population standard deviation and
// variance of a sample. An empty sample yields all zeros.
func moments(sample []float64) (mean, lo, hi, std, variance float64) {
	if len(sample) == 0 {
		return
	}
	lo = sample[0]
	hi = sample[0]
	sum := 0.0
	for _, x := range sample {
		sum += x
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	mean = sum / float64(len(sample))
	ss := 0.0
	for _, x := range sample {
		d := x - mean
		ss += d * d
	}
	variance = ss / float64(len(sample))
	std = math.Sqrt(variance)
	return
}

// sizeStats summarizes the positive packet sizes of one partition.
// Zero-length records count toward packet totals and entropy but not toward
// the size distribution. CV is 0 whenever the mean is 0.
func sizeStats(packets []*model.PacketRecord) model.SizeStats {
	sizes := make([]float64, 0, len(packets))
	for _, p := range packets {
		if p.Size > 0 {
			sizes = append(sizes, float64(p.Size))
		}
	}
	var s model.SizeStats
	s.Mean, s.Min, s.Max, s.Std, s.Var = moments(sizes)
	if s.Mean > 0 {
		s.CV = s.Std / s.Mean
	}
	return s
}

// iatStats summarizes the successive timestamp deltas of one partition in
// arrival order. A partition with fewer than two packets yields all zeros.
func iatStats(packets []*model.PacketRecord) model.IATStats {
	var s model.IATStats
	if len(packets) < 2 {
		return s
	}
	deltas := make([]float64, len(packets)-1)
	for i := 1; i < len(packets); i++ {
		deltas[i-1] = packets[i].Timestamp - packets[i-1].Timestamp
	}
	s.Mean, s.Min, s.Max, s.Std, s.Var = moments(deltas)
	return s
}

func countHeaders(packets []*model.PacketRecord, v *model.FeatureVector) {
	for _, p := range packets {
		if p.LongHeader {
			v.LongHeaderCount++
		} else {
			v.ShortHeaderCount++
		}
	}
	total := float64(len(packets))
	v.ShortHeaderRatio = v.ShortHeaderCount / total
	v.LongHeaderRatio = v.LongHeaderCount / total
}

func countSpin(packets []*model.PacketRecord, v *model.FeatureVector) {
	absent := 0.0
	for _, p := range packets {
		switch p.Spin {
		case model.SpinOne:
			v.SpinBitCount++
		case model.SpinAbsent:
			absent++
		}
	}
	total := float64(len(packets))
	v.SpinBitRatio = v.SpinBitCount / total
	v.NoSpinBitRatio = absent / total
}

// countTypes tallies the five counted packet types. TypeOther packets are
// part of the window total, so their presence lowers the five ratios.
// Ratios are denominated by the window's own size, never the flow total.
func countTypes(packets []*model.PacketRecord, v *model.FeatureVector) {
	for _, p := range packets {
		switch p.Type {
		case model.TypeInitial:
			v.InitialPackets++
		case model.TypeHandshake:
			v.HandshakePackets++
		case model.TypeZeroRTT:
			v.ZeroRTTPackets++
		case model.TypeOneRTT:
			v.OneRTTPackets++
		case model.TypeRetry:
			v.RetryPackets++
		}
	}
	total := float64(len(packets))
	v.InitialRatio = v.InitialPackets / total
	v.HandshakeRatio = v.HandshakePackets / total
	v.ZeroRTTRatio = v.ZeroRTTPackets / total
	v.OneRTTRatio = v.OneRTTPackets / total
	v.RetryRatio = v.RetryPackets / total
}

// shannonEntropy returns the base-2 entropy of the value distribution.
// Empty and single-valued distributions carry no information and yield
// exactly 0.
func shannonEntropy(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, x := range values {
		counts[x]++
	}
	if len(counts) == 1 {
		return 0
	}
	total := float64(len(values))
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

package summary

import (
	"math"
	"sort"
	"time"

	"github.com/jwalitptl/carebridge/internal/model"
)

type BloodPressure struct {
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
	Date      string `json:"date"`
}

type Reading[T int | float64] struct {
	Value T      `json:"value"`
	Date  string `json:"date"`
}

// Vitals is the series handed to the model, oldest first.
type Vitals struct {
	BloodPressure []BloodPressure     `json:"bloodPressure,omitempty"`
	HeartRate     []Reading[int]     `json:"heartRate,omitempty"`
	SugarLevel    []Reading[float64] `json:"sugarLevel,omitempty"`
	Timestamps    []string           `json:"timestamps"`
}

func (v *Vitals) HasData() bool {
	return len(v.BloodPressure) > 0 || len(v.HeartRate) > 0 || len(v.SugarLevel) > 0
}

type BloodPressureStats struct {
	AvgSystolic  int `json:"avgSystolic"`
	AvgDiastolic int `json:"avgDiastolic"`
	MinSystolic  int `json:"minSystolic"`
	MaxSystolic  int `json:"maxSystolic"`
	Count        int `json:"count"`
}

type IntStats struct {
	Average int `json:"average"`
	Min     int `json:"min"`
	Max     int `json:"max"`
	Count   int `json:"count"`
}

type FloatStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int     `json:"count"`
}

type Stats struct {
	BloodPressure *BloodPressureStats `json:"bloodPressure"`
	HeartRate     *IntStats           `json:"heartRate"`
	SugarLevel    *FloatStats         `json:"sugarLevel"`
}

// BuildVitals turns stored records into series. A blood pressure reading
// needs both values.
func BuildVitals(records []*model.HealthRecord) *Vitals {
	sorted := append([]*model.HealthRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RecordedAt.Before(sorted[j].RecordedAt) })

	v := &Vitals{Timestamps: make([]string, 0, len(sorted))}
	for _, r := range sorted {
		date := r.RecordedAt.UTC().Format(time.RFC3339)
		v.Timestamps = append(v.Timestamps, date)
		if r.BloodPressureSystolic != nil && r.BloodPressureDiastolic != nil {
			v.BloodPressure = append(v.BloodPressure, BloodPressure{
				Systolic:  *r.BloodPressureSystolic,
				Diastolic: *r.BloodPressureDiastolic,
				Date:      date,
			})
		}
		if r.HeartRate != nil {
			v.HeartRate = append(v.HeartRate, Reading[int]{Value: *r.HeartRate, Date: date})
		}
		if r.SugarLevel != nil {
			v.SugarLevel = append(v.SugarLevel, Reading[float64]{Value: *r.SugarLevel, Date: date})
		}
	}
	return v
}

func ComputeStats(v *Vitals) Stats {
	var s Stats

	if n := len(v.BloodPressure); n > 0 {
		bp := &BloodPressureStats{MinSystolic: v.BloodPressure[0].Systolic, MaxSystolic: v.BloodPressure[0].Systolic, Count: n}
		var sys, dia int
		for _, r := range v.BloodPressure {
			sys += r.Systolic
			dia += r.Diastolic
			bp.MinSystolic = min(bp.MinSystolic, r.Systolic)
			bp.MaxSystolic = max(bp.MaxSystolic, r.Systolic)
		}
		bp.AvgSystolic = roundInt(float64(sys) / float64(n))
		bp.AvgDiastolic = roundInt(float64(dia) / float64(n))
		s.BloodPressure = bp
	}

	if n := len(v.HeartRate); n > 0 {
		hr := &IntStats{Min: v.HeartRate[0].Value, Max: v.HeartRate[0].Value, Count: n}
		var sum int
		for _, r := range v.HeartRate {
			sum += r.Value
			hr.Min = min(hr.Min, r.Value)
			hr.Max = max(hr.Max, r.Value)
		}
		hr.Average = roundInt(float64(sum) / float64(n))
		s.HeartRate = hr
	}

	if n := len(v.SugarLevel); n > 0 {
		sl := &FloatStats{Min: v.SugarLevel[0].Value, Max: v.SugarLevel[0].Value, Count: n}
		var sum float64
		for _, r := range v.SugarLevel {
			sum += r.Value
			sl.Min = math.Min(sl.Min, r.Value)
			sl.Max = math.Max(sl.Max, r.Value)
		}
		sl.Average = math.Round(sum/float64(n)*10) / 10
		s.SugarLevel = sl
	}

	return s
}

// roundInt rounds half up, matching how averages are shown to patients.
func roundInt(f float64) int {
	return int(math.Floor(f + 0.5))
}

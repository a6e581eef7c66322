package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"
)

// seedStore fills a treap store with one measurement per site.
func seedStore(b *testing.B, sites int) (*TreapStore, []string) {
	b.Helper()
	ctx := context.Background()
	s := NewTreapStore(ctx, WithMetricsUpdateInterval(time.Hour))
	b.Cleanup(func() { _ = s.Close() })

	r := rand.New(rand.NewSource(1))
	ids := make([]string, sites)
	for i := range ids {
		ids[i] = fmt.Sprintf("site-%06d", i)
		m := measurement(fmt.Sprintf("seed-%06d", i), ids[i], r.Float64(), 0)
		if err := s.Save(ctx, m); err != nil {
			b.Fatalf("seed: %v", err)
		}
	}
	return s, ids
}

func BenchmarkTreapStore_Save(b *testing.B) {
	for _, sites := range []int{1_000, 100_000} {
		b.Run(fmt.Sprintf("sites=%d", sites), func(b *testing.B) {
			s, ids := seedStore(b, sites)
			ctx := context.Background()
			r := rand.New(rand.NewSource(2))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				site := ids[r.Intn(len(ids))]
				m := measurement(fmt.Sprintf("m-%d", i), site, r.Float64(), time.Duration(i+1)*time.Second)
				if err := s.Save(ctx, m); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTreapStore_Rank(b *testing.B) {
	s, ids := seedStore(b, 100_000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Rank(ctx, ids[i%len(ids)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreapStore_TopN(b *testing.B) {
	s, _ := seedStore(b, 100_000)
	ctx := context.Background()
	for _, n := range []int{10, 100} {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.TopN(ctx, n); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkTreapStore_Mixed runs concurrent saves and reads in a 1:4 ratio.
func BenchmarkTreapStore_Mixed(b *testing.B) {
	s, ids := seedStore(b, 50_000)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		i := 0
		for pb.Next() {
			i++
			site := ids[r.Intn(len(ids))]
			switch i % 5 {
			case 0:
				m := measurement(fmt.Sprintf("p-%d-%d", r.Int63(), i), site, r.Float64(), time.Duration(i)*time.Second)
				_ = s.Save(ctx, m)
			case 1, 2:
				_, _ = s.Rank(ctx, site)
			default:
				_, _ = s.TopN(ctx, 10)
			}
		}
	})
}

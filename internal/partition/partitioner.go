// Package partition maps event timestamps into (exchange, trading_date)
// partition keys using exchange-local calendars.
package partition

import (
	"fmt"
	"time"

	"marketlake/models"
)

// ConfigurationError reports an exchange that cannot be mapped to a loadable
// IANA timezone. It is fatal and never silently defaulted.
type ConfigurationError struct {
	Exchange string
	Zone     string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange %q: timezone %q: %v", e.Exchange, e.Zone, e.Err)
	}
	return fmt.Sprintf("exchange %q is not configured", e.Exchange)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Partitioner derives trading dates from UTC event timestamps. All zones are
// loaded and verified at construction so an unknown exchange fails before any
// data is touched.
type Partitioner struct {
	zones map[string]*time.Location
}

// NewPartitioner loads every configured exchange timezone. The table maps
// exchange code to IANA zone name.
func NewPartitioner(table map[string]string) (*Partitioner, error) {
	zones := make(map[string]*time.Location, len(table))
	for exchange, zone := range table {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, &ConfigurationError{Exchange: exchange, Zone: zone, Err: err}
		}
		zones[exchange] = loc
	}
	return &Partitioner{zones: zones}, nil
}

// TradingDate converts a UTC microsecond timestamp into the exchange-local
// calendar date. An instant exactly at local midnight belongs to the day that
// begins there, matching the half-open window convention used by the
// dimension resolver.
func (p *Partitioner) TradingDate(eventTsUs int64, exchange string) (string, error) {
	loc, ok := p.zones[exchange]
	if !ok {
		return "", &ConfigurationError{Exchange: exchange}
	}
	local := time.UnixMicro(eventTsUs).In(loc)
	return local.Format("2006-01-02"), nil
}

// Partition stamps every row with its partition key. Rows keep their input
// order. The first unknown exchange aborts the whole batch; that is a
// configuration error, not a data error.
func (p *Partitioner) Partition(rows []models.EventRow, exchange string) ([]models.EventRow, error) {
	out := make([]models.EventRow, len(rows))
	for i, row := range rows {
		date, err := p.TradingDate(row.EventTsUs, exchange)
		if err != nil {
			return nil, err
		}
		row.Partition = models.PartitionKey{Exchange: exchange, TradingDate: date}
		out[i] = row
	}
	return out, nil
}

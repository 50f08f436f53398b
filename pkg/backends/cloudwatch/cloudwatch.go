package cloudwatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/netstatsd"
	internalutil "github.com/atlassian/netstatsd/internal/util"
	"github.com/atlassian/netstatsd/pkg/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "cloudwatch"
	// DefaultNamespace is the default CloudWatch namespace metrics are put into.
	DefaultNamespace = "StatsD"
	// DefaultMaxConcurrentRequests is the default number of PutMetricData calls in flight per flush.
	DefaultMaxConcurrentRequests = 4

	// Maximum number of dimensions per metric
	// https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/cloudwatch_limits.html
	maxDimensions = 10
	// A single PutMetricData request takes at most this many datums.
	maxBatchSize = 20
)

// Client is an object that is used to send messages to AWS CloudWatch.
type Client struct {
	cloudwatch cloudwatchiface.CloudWatchAPI
	namespace  string
	dimensions []*cloudwatch.Dimension
	requests   *util.Semaphore
}

// NewClientFromViper constructs a Cloudwatch backend.
func NewClientFromViper(v *viper.Viper) (netstatsd.Backend, error) {
	g := internalutil.GetSubViper(v, BackendName)
	g.SetDefault("namespace", DefaultNamespace)
	g.SetDefault("max-concurrent-requests", DefaultMaxConcurrentRequests)

	cfg := aws.NewConfig()
	if region := g.GetString("region"); region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", BackendName, err)
	}
	return NewClient(
		cloudwatch.New(sess),
		g.GetString("namespace"),
		g.GetStringMapString("dimensions"),
		g.GetInt("max-concurrent-requests"),
	), nil
}

// NewClient constructs a AWS Cloudwatch backend. Every datum carries the given dimensions.
func NewClient(api cloudwatchiface.CloudWatchAPI, namespace string, dimensions map[string]string, maxConcurrentRequests int) *Client {
	log.WithFields(log.Fields{
		"namespace":               namespace,
		"dimensions":              dimensions,
		"max-concurrent-requests": maxConcurrentRequests,
	}).Info("created backend")
	return &Client{
		cloudwatch: api,
		namespace:  namespace,
		dimensions: buildDimensions(dimensions),
		requests:   util.NewSemaphore(maxConcurrentRequests),
	}
}

func buildDimensions(dims map[string]string) []*cloudwatch.Dimension {
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > maxDimensions {
		log.Warnf("[%s] Too many dimensions (%d) specified, truncating to %d", BackendName, len(names), maxDimensions)
		names = names[:maxDimensions]
	}
	dimensions := make([]*cloudwatch.Dimension, 0, len(names))
	for _, name := range names {
		dimensions = append(dimensions, &cloudwatch.Dimension{
			Name:  aws.String(name),
			Value: aws.String(dims[name]),
		})
	}
	return dimensions
}

func (client *Client) buildMetricData(snap *netstatsd.Snapshot) []*cloudwatch.MetricDatum {
	var metricData []*cloudwatch.MetricDatum
	now := snap.Timestamp
	prefix := ""

	addMetricData := func(key string, unit string, value float64) {
		metricData = append(metricData, &cloudwatch.MetricDatum{
			MetricName: aws.String(prefix + key),
			Timestamp:  aws.Time(now),
			Unit:       aws.String(unit),
			Value:      aws.Float64(value),
			Dimensions: client.dimensions,
		})
	}

	prefix = "stats.counter."
	for _, key := range snap.Counters.Keys() {
		counter := snap.Counters[key]
		addMetricData(key+".count", cloudwatch.StandardUnitCount, counter.Value)
		addMetricData(key+".per_second", cloudwatch.StandardUnitCountSecond, counter.PerSecond)
	}

	prefix = "stats.timers."
	for _, key := range snap.Timers.Keys() {
		timer := snap.Timers[key]
		addMetricData(key+".count", cloudwatch.StandardUnitCount, timer.SampledCount)
		addMetricData(key+".count_ps", cloudwatch.StandardUnitCountSecond, timer.PerSecond)
		if timer.Count == 0 {
			continue
		}
		addMetricData(key+".lower", cloudwatch.StandardUnitMilliseconds, timer.Min)
		addMetricData(key+".upper", cloudwatch.StandardUnitMilliseconds, timer.Max)
		addMetricData(key+".mean", cloudwatch.StandardUnitMilliseconds, timer.Mean)
		addMetricData(key+".median", cloudwatch.StandardUnitMilliseconds, timer.Median)
		addMetricData(key+".std", cloudwatch.StandardUnitMilliseconds, timer.StdDev)
		addMetricData(key+".sum", cloudwatch.StandardUnitMilliseconds, timer.Sum)
		addMetricData(key+".sum_squares", cloudwatch.StandardUnitMilliseconds, timer.SumSquares)
		timer.Percentiles.Each(func(name string, value float64) {
			addMetricData(key+"."+name, cloudwatch.StandardUnitMilliseconds, value)
		})
	}

	prefix = "stats.gauge."
	for _, key := range snap.Gauges.Keys() {
		addMetricData(key, cloudwatch.StandardUnitNone, snap.Gauges[key].Value)
	}

	prefix = "stats.set."
	for _, key := range snap.Sets.Keys() {
		addMetricData(key, cloudwatch.StandardUnitNone, float64(snap.Sets[key].Count()))
	}

	return metricData
}

// SendSnapshot puts the snapshot's metrics into CloudWatch in batches of 20,
// sending up to max-concurrent-requests batches at once.
func (client *Client) SendSnapshot(ctx context.Context, snap *netstatsd.Snapshot) error {
	metricData := client.buildMetricData(snap)

	var batches []func(context.Context) error
	for start := 0; start < len(metricData); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(metricData) {
			end = len(metricData)
		}
		data := metricData[start:end]
		batches = append(batches, func(ctx context.Context) error {
			_, err := client.cloudwatch.PutMetricDataWithContext(ctx, &cloudwatch.PutMetricDataInput{
				MetricData: data,
				Namespace:  aws.String(client.namespace),
			})
			return err
		})
	}
	if err := client.requests.Do(ctx, batches...); err != nil {
		return fmt.Errorf("[%s] %w", BackendName, err)
	}
	return nil
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

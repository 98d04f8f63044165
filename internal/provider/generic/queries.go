package generic

// namedQuery binds a metric name to the query-language expression that
// produces it and the unit recorded with the result.
type namedQuery struct {
	name string
	expr string
	unit string
}

// performanceQueries is the fixed set of inference-serving performance
// signals the generic adapter collects from any provider's metrics-query
// endpoint.
var performanceQueries = []namedQuery{
	{name: "request_count", expr: `sum(rate(vllm:request_success_total[5m]))`, unit: "requests_per_second"},
	{name: "latency_sum", expr: `sum(vllm:e2e_request_latency_seconds_sum)`, unit: "seconds"},
	{name: "queue_depth", expr: `sum(vllm:num_requests_waiting)`, unit: "requests"},
	{name: "tokens_generated", expr: `sum(vllm:generation_tokens_total)`, unit: "tokens"},
	{name: "tokens_prompt", expr: `sum(vllm:prompt_tokens_total)`, unit: "tokens"},
	{name: "cache_usage", expr: `avg(vllm:gpu_cache_usage_perc)`, unit: "ratio"},
}

// Resource utilization queries. Memory utilization is computed from the
// used/total pair below and is not part of this list.
var resourceQueries = []namedQuery{
	{name: "cpu_utilization", expr: `avg(rate(container_cpu_usage_seconds_total[5m])) * 100`, unit: "percent"},
	{name: "disk_usage", expr: `sum(container_fs_usage_bytes)`, unit: "bytes"},
	{name: "network_receive", expr: `sum(rate(container_network_receive_bytes_total[5m]))`, unit: "bytes_per_second"},
	{name: "network_transmit", expr: `sum(rate(container_network_transmit_bytes_total[5m]))`, unit: "bytes_per_second"},
}

const (
	memoryUsedQuery  = `sum(container_memory_working_set_bytes)`
	memoryTotalQuery = `sum(machine_memory_bytes)`
)

// Application-quality ratio queries. Ratios are scaled to percentages
// when the records are built.
var applicationQueries = []namedQuery{
	{name: "success_rate", expr: `sum(rate(http_requests_total{status=~"2.."}[5m])) / sum(rate(http_requests_total[5m]))`, unit: "percent"},
	{name: "error_rate", expr: `sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m]))`, unit: "percent"},
}

// Package features turns a finalized flow into the ordered feature vector
// consumed by the analyzer.
package features

// Names lists the feature fields in wire order. The analyzer's contract file
// must list the same names in the same order.
var Names = []string{
	"duration", "protocol_type", "service", "flag", "src_bytes", "dst_bytes", "land",
	"fwd_pkt_count", "bwd_pkt_count",
	"fwd_pkt_len_total", "fwd_pkt_len_min", "fwd_pkt_len_max", "fwd_pkt_len_mean", "fwd_pkt_len_std",
	"bwd_pkt_len_total", "bwd_pkt_len_min", "bwd_pkt_len_max", "bwd_pkt_len_mean", "bwd_pkt_len_std",
	"flow_iat_mean", "flow_iat_std", "flow_iat_max", "flow_iat_min",
	"fwd_pkts_per_sec", "bwd_pkts_per_sec",
	"count", "srv_count", "serror_rate", "srv_serror_rate", "rerror_rate", "srv_rerror_rate",
	"same_srv_rate", "diff_srv_rate", "srv_diff_host_rate",
	"dst_host_count", "dst_host_srv_count", "dst_host_same_srv_rate", "dst_host_diff_srv_rate",
	"dst_host_same_src_port_rate", "dst_host_srv_diff_host_rate", "dst_host_serror_rate",
	"dst_host_srv_serror_rate", "dst_host_rerror_rate", "dst_host_srv_rerror_rate",
}

// Categorical names the fields carried as labels rather than numbers.
var Categorical = map[string]bool{
	"protocol_type": true,
	"service":       true,
	"flag":          true,
}

// Len is the number of fields in every vector.
func Len() int {
	return len(Names)
}

// Package internaldefs holds the metric names, help strings and histogram
// bucket bounds shared by the exporters, so the Prometheus and OTel views of
// a Controller always agree.
package internaldefs

// Package imagery groups the clients for the satellite imagery provider.
//
// Sub-packages:
//   - [github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient] is the outbound HTTP layer shared by every provider client
//   - [github.com/Berektassuly/terra-vision-ai/pkg/imagery/credentials] caches the OAuth2 client-credentials bearer token
//   - [github.com/Berektassuly/terra-vision-ai/pkg/imagery/catalog] searches the scene catalog
//   - [github.com/Berektassuly/terra-vision-ai/pkg/imagery/statistics] computes vegetation-index statistics over a polygon
//   - [github.com/Berektassuly/terra-vision-ai/pkg/imagery/render] renders health-map and true-color PNGs
//
// Catalog, statistics and render share one credentials cache, injected at
// construction. None of the clients retries; a failed call is reported once.
package imagery

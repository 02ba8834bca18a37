package kube

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/aluminyoom/kubesee/pkg/metrics"
	"github.com/rs/zerolog/log"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/restmapper"
)

// objectMetadataProvider resolves an event's involved object into the
// labels/annotations/owner-references an exported event is enriched with.
// The only implementation, objectMetadataCache, talks to the API server
// through the dynamic client and caches the result.
type objectMetadataProvider interface {
	getObjectMetadata(reference *v1.ObjectReference, clientset kubernetes.Interface, dynClient dynamic.Interface, metricsStore *metrics.Store) (objectMetadata, error)
}

// objectMetadataCache fetches involved-object metadata via the dynamic
// client, keyed by object UID, with a second cache for the
// GroupKind->GroupVersionResource REST mappings that lookup requires (those
// rarely change and are expensive to recompute per event).
type objectMetadataCache struct {
	cache        *lru.TwoQueueCache[string, cachedMetadata]
	mappingCache *lru.TwoQueueCache[string, schema.GroupVersionResource]
	ttl          time.Duration
}

var _ objectMetadataProvider = &objectMetadataCache{}

type cachedMetadata struct {
	fetchedAt time.Time
	metadata  objectMetadata
}

// objectMetadata is what gets attached to an EnhancedEvent.InvolvedObject
// beyond the plain ObjectReference carried on the Event itself.
type objectMetadata struct {
	Annotations     map[string]string
	Labels          map[string]string
	OwnerReferences []metav1.OwnerReference
	Deleted         bool
}

// newObjectMetadataProviderWithTTL builds the cache pair backing
// objectMetadataCache. Both sizes must produce valid LRU caches and ttl must
// be positive; these are invariants established once at startup from
// already-validated config, so failure here panics rather than returning an
// error that every caller would have to handle.
func newObjectMetadataProviderWithTTL(size, mappingCacheSize int, ttl time.Duration) objectMetadataProvider {
	if ttl <= 0 {
		panic("cannot init cache: CacheTTL must be positive")
	}

	cache, err := lru.New2Q[string, cachedMetadata](size)
	if err != nil {
		panic("cannot init cache: " + err.Error())
	}

	mappingCache, err := lru.New2Q[string, schema.GroupVersionResource](mappingCacheSize)
	if err != nil {
		panic("cannot init mapping cache: " + err.Error())
	}

	var o objectMetadataProvider = &objectMetadataCache{
		cache:        cache,
		mappingCache: mappingCache,
		ttl:          ttl,
	}

	return o
}

// groupVersionFromAPIVersion splits an ObjectReference.APIVersion like
// "apps/v1" into its group ("apps") and version ("v1"); core/v1 objects
// carry just "v1" with an empty group.
func groupVersionFromAPIVersion(apiVersion string) (group, version string) {
	parts := strings.SplitN(apiVersion, "/", 2)
	if len(parts) == 1 {
		return "", parts[0]
	}
	return parts[0], parts[1]
}

func (o *objectMetadataCache) getObjectMetadata(reference *v1.ObjectReference, clientset kubernetes.Interface, dynClient dynamic.Interface, metricsStore *metrics.Store) (objectMetadata, error) {
	cacheKey := string(reference.UID)
	if val, ok := o.cache.Get(cacheKey); ok {
		if time.Since(val.fetchedAt) < o.ttl || o.ttl <= 0 {
			metricsStore.KubeApiReadCacheHits.Inc()
			return val.metadata, nil
		}
		o.cache.Remove(cacheKey)
	}

	group, version := groupVersionFromAPIVersion(reference.APIVersion)
	mappingKey := group + "|" + version + "|" + reference.Kind

	gvr, ok := o.mappingCache.Get(mappingKey)
	if ok {
		metricsStore.KubeApiMappingCacheHits.Inc()
		log.Debug().Str("mappingKey", mappingKey).Msg("mapping cache hit")
	} else {
		groupResources, err := restmapper.GetAPIGroupResources(clientset.Discovery())
		if err != nil {
			return objectMetadata{}, err
		}
		rm := restmapper.NewDiscoveryRESTMapper(groupResources)
		gk := schema.GroupKind{Group: group, Kind: reference.Kind}
		mapping, err := rm.RESTMapping(gk, version)
		if err != nil {
			return objectMetadata{}, err
		}

		metricsStore.KubeApiMappingReadRequests.Inc()
		gvr = mapping.Resource
		o.mappingCache.Add(mappingKey, gvr)
	}

	item, err := dynClient.
		Resource(gvr).
		Namespace(reference.Namespace).
		Get(context.Background(), reference.Name, metav1.GetOptions{})

	metricsStore.KubeApiReadRequests.Inc()

	if err != nil {
		return objectMetadata{}, err
	}

	meta := objectMetadata{
		OwnerReferences: item.GetOwnerReferences(),
		Labels:          item.GetLabels(),
		Annotations:     item.GetAnnotations(),
		Deleted:         item.GetDeletionTimestamp() != nil,
	}

	o.cache.Add(cacheKey, cachedMetadata{metadata: meta, fetchedAt: time.Now()})
	return meta, nil
}
